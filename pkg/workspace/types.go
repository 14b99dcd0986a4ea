package workspace

// Workspace is the root object of a relesia.yaml manifest. It lists the
// repositories a sync run clones, pins and updates.
type Workspace struct {
	APIVersion string   `yaml:"apiVersion" mapstructure:"apiVersion" validate:"required"`
	Kind       string   `yaml:"kind" mapstructure:"kind" validate:"required,eq=Workspace"`
	Metadata   Metadata `yaml:"metadata" mapstructure:"metadata" validate:"required"`
	Spec       Spec     `yaml:"spec" mapstructure:"spec" validate:"required"`
}

// Metadata contains workspace-level metadata.
type Metadata struct {
	Name        string            `yaml:"name" mapstructure:"name" validate:"required"`
	Description string            `yaml:"description" mapstructure:"description"`
	Labels      map[string]string `yaml:"labels,omitempty" mapstructure:"labels"`
}

// Spec describes what a sync run does.
type Spec struct {
	// Author is recorded on commits created by overlays.
	Author       Author       `yaml:"author" mapstructure:"author"`
	Repositories []Repository `yaml:"repositories" mapstructure:"repositories" validate:"required,min=1,unique=Name,dive"`
}

// Author is the commit identity used for overlay commits.
type Author struct {
	Name  string `yaml:"name" mapstructure:"name"`
	Email string `yaml:"email" mapstructure:"email" validate:"omitempty,email"`
}

// Repository is one working copy managed by the workspace. Exactly one of URL
// and GitLab must be set.
type Repository struct {
	Name        string        `yaml:"name" mapstructure:"name" validate:"required"`
	SCM         string        `yaml:"scm" mapstructure:"scm" validate:"required"`
	URL         string        `yaml:"url" mapstructure:"url" validate:"required_without=GitLab,excluded_with=GitLab"`
	GitLab      *GitLabSource `yaml:"gitlab,omitempty" mapstructure:"gitlab"`
	Destination string        `yaml:"destination" mapstructure:"destination" validate:"required"`
	Revision    string        `yaml:"revision" mapstructure:"revision"`
	Credentials Credentials   `yaml:"credentials" mapstructure:"credentials"`
	Overlay     *Overlay      `yaml:"overlay,omitempty" mapstructure:"overlay"`
}

// GitLabSource names a GitLab project whose clone URL is looked up through
// the API at sync time.
type GitLabSource struct {
	BaseURL   string `yaml:"baseUrl" mapstructure:"baseUrl" validate:"omitempty,url"`
	Project   string `yaml:"project" mapstructure:"project" validate:"required"`
	PreferSSH bool   `yaml:"preferSsh" mapstructure:"preferSsh"`
}

// Credentials name the environment variables holding secrets. Secrets never
// appear in the manifest itself.
type Credentials struct {
	UsernameEnv      string `yaml:"usernameEnv" mapstructure:"usernameEnv"`
	PasswordEnv      string `yaml:"passwordEnv" mapstructure:"passwordEnv"`
	TokenEnv         string `yaml:"tokenEnv" mapstructure:"tokenEnv"`
	SSHKeyPath       string `yaml:"sshKeyPath" mapstructure:"sshKeyPath"`
	SSHPassphraseEnv string `yaml:"sshPassphraseEnv" mapstructure:"sshPassphraseEnv"`
}

// Overlay copies a template directory into the working copy and commits the
// result.
type Overlay struct {
	Source  string `yaml:"source" mapstructure:"source" validate:"required"`
	Message string `yaml:"message" mapstructure:"message" validate:"required"`
}
