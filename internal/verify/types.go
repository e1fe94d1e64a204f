// Package verify defines the domain records flowing through the
// verification pipeline and the URL arithmetic tying a served image back
// to its canonical original.
package verify

// Size carries the claimed pixel dimensions of an image.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Source identifies where an image is served from. LocalPath and LocalMD5
// are empty on discovery and filled in once the served copy has been
// downloaded and digested.
type Source struct {
	MediaType string `json:"mediaType,omitempty"`
	URI       string `json:"uri"`
	Filename  string `json:"filename,omitempty"`
	LocalPath string `json:"local,omitempty"`
	LocalMD5  string `json:"local-md5,omitempty"`
}

// ImageDescriptor is the unit of discovery: one per image record found in
// an article document. It is immutable after the walker emits it.
type ImageDescriptor struct {
	Label  string `json:"label,omitempty"`
	Title  string `json:"title,omitempty"`
	ID     string `json:"id,omitempty"`
	Size   Size   `json:"size"`
	Source Source `json:"source"`
}

// ComparisonResult is the unit of reporting: the descriptor enriched with
// downloaded-file metadata and the comparison outcome. PAE is nil when the
// comparison tool failed both attempts; otherwise it lies in [0,1] with 1
// meaning maximal deviation.
//
// The JSON field names are a durable contract: a later run rebuilds its
// dedup index from source.uri and md5, and operator tooling reads
// article-id and pae straight off the report ledger.
type ComparisonResult struct {
	ImageDescriptor

	ArticleID    string   `json:"article-id"`
	Bytes        int64    `json:"bytes"`
	MD5          string   `json:"md5"`
	PAE          *float64 `json:"pae"`
	OriginalPath string   `json:"original-cache,omitempty"`
	ServedPath   string   `json:"served-cache,omitempty"`
	DiffPath     string   `json:"diff-cache,omitempty"`
}

// MaxDeviation is the peak-error score at which a served image is treated
// as fully deviating from its original.
const MaxDeviation = 1.0

// IsDeviation reports whether the result scored as a full deviation.
func (r *ComparisonResult) IsDeviation() bool {
	return r.PAE != nil && *r.PAE == MaxDeviation
}
