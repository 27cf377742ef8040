package knowledge

import "time"

// Document is one chunk of corpus text with its metadata.
type Document struct {
	ID       string            // Unique identifier
	Content  string            // Chunk text content
	Metadata map[string]string // Source metadata (file, page, section)
	CreateAt time.Time         // Creation timestamp
}

// Result is a retrieved document with its query similarity.
type Result struct {
	Document   Document
	Similarity float32 // Cosine similarity to the query (0-1)
}

// SearchOption configures search behavior using the functional options
// pattern, as in context.WithTimeout or grpc.Dial.
type SearchOption func(*searchConfig)

// searchConfig holds internal search configuration.
type searchConfig struct {
	topK    int
	fetchK  int
	lambda  float64
	timeout time.Duration
	filter  map[string]string
}

// Search defaults; the MMR parameters are tuned for the deployed corpus.
const (
	DefaultTopK    = 10
	DefaultFetchK  = 30
	DefaultLambda  = 0.4
	DefaultTimeout = 10 * time.Second
)

// WithTopK sets how many documents the search returns.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithFetchK sets how many nearest candidates are fetched before MMR
// re-ranking. Values below topK are raised to topK.
func WithFetchK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.fetchK = k
		}
	}
}

// WithLambda sets the MMR relevance/diversity trade-off in [0,1]:
// 1 is pure relevance, 0 is pure diversity.
func WithLambda(lambda float64) SearchOption {
	return func(c *searchConfig) {
		if lambda >= 0 && lambda <= 1 {
			c.lambda = lambda
		}
	}
}

// WithTimeout bounds the search, embedding included.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithFilter restricts candidates to documents whose metadata contains the
// given key/value. Multiple calls AND together.
func WithFilter(key, value string) SearchOption {
	return func(c *searchConfig) {
		if c.filter == nil {
			c.filter = make(map[string]string)
		}
		c.filter[key] = value
	}
}

// buildSearchConfig applies search options over the defaults.
func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    DefaultTopK,
		fetchK:  DefaultFetchK,
		lambda:  DefaultLambda,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.fetchK < cfg.topK {
		cfg.fetchK = cfg.topK
	}
	return cfg
}
