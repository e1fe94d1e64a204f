package app

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// ErrUsage marks a malformed command-line target. It is fatal and fires
// before any pipeline component starts.
var ErrUsage = errors.New("usage error")

// Mode selects the discovery driver.
type Mode int

// Discovery modes.
const (
	ModeCatalog Mode = iota
	ModeArticle
	ModeImage
)

// Target is the parsed command-line selection of what to verify.
type Target struct {
	Mode      Mode
	ArticleID string
	ImageURL  string
}

// ParseTarget classifies the optional positional argument: absent means a
// whole-catalog scan, a valid URL names one image, a positive integer
// names one article, anything else is a usage error.
func ParseTarget(args []string) (Target, error) {
	switch len(args) {
	case 0:
		return Target{Mode: ModeCatalog}, nil
	case 1:
	default:
		return Target{}, fmt.Errorf("%w: at most one target argument", ErrUsage)
	}

	arg := args[0]
	if u, err := url.Parse(arg); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return Target{Mode: ModeImage, ImageURL: arg}, nil
	}
	if id, err := strconv.Atoi(arg); err == nil && id > 0 {
		return Target{Mode: ModeArticle, ArticleID: arg}, nil
	}
	return Target{}, fmt.Errorf("%w: %q is neither a URL nor a positive article id", ErrUsage, arg)
}
