package instance

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// credentialFile is the on-disk layout of the instances
// file.
type credentialFile struct {
	Instances []Credential `yaml:"instances"`
}

// Parse decodes an instances file from in and validates
// every credential. Labels must be unique: two instances
// resolving to the same label would merge their records.
func Parse(in io.Reader) ([]Credential, error) {
	const errCtx = "parsing instances file"

	raw, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: reading: %w", errCtx, err,
		)
	}

	var file credentialFile

	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf(
			"%s: decoding yaml: %w", errCtx, err,
		)
	}

	if len(file.Instances) == 0 {
		return nil, fmt.Errorf(
			"%s: no instances defined", errCtx,
		)
	}

	if err := validateAll(file.Instances); err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}

	return file.Instances, nil
}

// Pairs builds credentials by zipping parallel URL and
// token lists, the layout of comma-separated environment
// configuration. Both lists must have the same length.
func Pairs(urls, tokens []string) ([]Credential, error) {
	const errCtx = "pairing instance credentials"

	if len(urls) == 0 {
		return nil, fmt.Errorf(
			"%s: no instances defined", errCtx,
		)
	}

	if len(urls) != len(tokens) {
		return nil, fmt.Errorf(
			"%s: %d urls but %d tokens",
			errCtx, len(urls), len(tokens),
		)
	}

	creds := make([]Credential, len(urls))

	for i, u := range urls {
		creds[i] = Credential{
			URL:   strings.TrimSpace(u),
			Token: strings.TrimSpace(tokens[i]),
		}
	}

	if err := validateAll(creds); err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}

	return creds, nil
}

// validateAll checks every credential and enforces unique
// labels.
func validateAll(creds []Credential) error {
	seen := make(map[string]struct{}, len(creds))

	for _, cred := range creds {
		if err := cred.Validate(); err != nil {
			return err
		}

		label := cred.Label()
		if _, dup := seen[label]; dup {
			return fmt.Errorf(
				"duplicate instance label %q", label,
			)
		}

		seen[label] = struct{}{}
	}

	return nil
}

// Load reads and parses the instances file at path.
func Load(path string) ([]Credential, error) {
	const errCtx = "loading instances file"

	fd, err := os.Open(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}
	defer func() { _ = fd.Close() }()

	creds, err := Parse(fd)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %s: %w", errCtx, path, err,
		)
	}

	return creds, nil
}
