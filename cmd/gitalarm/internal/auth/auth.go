// Package auth resolves the hosted-API token from flags or
// environment variables, mirroring the teacher CLI's
// NANOGIT_TOKEN/GITHUB_TOKEN/GITLAB_TOKEN fallback chain (§10.3).
package auth

import "os"

// TokenFromEnvironment returns GITALARM_TOKEN if set, else GITHUB_TOKEN,
// else the empty string.
func TokenFromEnvironment() string {
	if t := os.Getenv("GITALARM_TOKEN"); t != "" {
		return t
	}
	return os.Getenv("GITHUB_TOKEN")
}

// ResolveToken applies command-line precedence over the environment
// fallback chain.
func ResolveToken(flagToken string) string {
	if flagToken != "" {
		return flagToken
	}
	return TokenFromEnvironment()
}
