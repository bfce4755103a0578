package config

import "fmt"

// ProjectResolver implements workflow.ProjectResolver over the configured
// project list, resolving a "owner/repo" string to the local checkout path
// the WorkflowExecutor runs the backend CLI from.
type ProjectResolver struct {
	cfg *Config
}

// NewProjectResolver returns a workflow.ProjectResolver backed by cfg.
func NewProjectResolver(cfg *Config) *ProjectResolver {
	return &ProjectResolver{cfg: cfg}
}

// ProjectPath returns the local checkout path registered for repo, or an
// error if no project matches.
func (r *ProjectResolver) ProjectPath(repo string) (string, error) {
	proj := r.cfg.GetProjectByRepo(repo)
	if proj == nil {
		return "", fmt.Errorf("no project configured for repo %q", repo)
	}
	return proj.Path, nil
}
