package github

// Config holds the GitHub adapter's own configuration, composed into the
// ambient config.Config (internal/config) under the adapters section.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"` // Personal Access Token or GitHub App token
	// BoardLabel is carried in the configuration; Adapter.ListItems does not
	// read it and lists every open issue of the board's repo without a label
	// filter.
	BoardLabel string `yaml:"board_label"`
}

// DefaultConfig returns default GitHub adapter configuration.
func DefaultConfig() *Config {
	return &Config{Enabled: false, BoardLabel: "kiln"}
}

// Issue states as reported by the GitHub REST API.
const (
	StateOpen   = "open"
	StateClosed = "closed"
)

// statusLabelPrefix namespaces the status-carrying label this adapter uses
// to represent an item's kiln status column on a GitHub Issues board: a
// plain Issues repo has no native "board column" concept, so status is
// encoded as a single label "status:<name>" (e.g. "status:research"),
// exactly the way running/ready/control labels are already encoded. This
// keeps the entire state machine expressible as GitHub issue labels, with
// no dependency on the separate Projects v2 GraphQL surface.
const statusLabelPrefix = "status:"
