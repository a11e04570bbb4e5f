// Package instance defines the family-neutral types and the
// capability interface shared by all instance clients. An instance is
// one GitLab-compatible server identified by a base URL and an access
// token; the Client interface abstracts authentication and the three
// user-scoped fetches (events, projects, commits per project).
//
// Concrete families live in sub-packages: gitlab implements the
// interface with the official GitLab API client, github with the
// go-github client. The family is selected by configuration, never by
// runtime type inspection.
package instance
