package bitbucketapi

import (
	"fmt"
	"os"
	"strings"
)

// ConfigurationError indicates a required setting is missing or malformed.
// It is raised before any network activity.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Config holds the Bitbucket Data Center connection settings.
//
// Read from environment variables:
//
//	BITBUCKET_HOST:      domain + optional port (e.g. "git.company.se" or "git.company.se:7990")
//	BITBUCKET_URL:       full base URL alternative (e.g. "https://git.company.se")
//	BITBUCKET_API_TOKEN: Personal Access Token for authentication
type Config struct {
	BaseURL  string
	APIToken string
}

// ConfigFromEnv builds a Config from environment variables.
func ConfigFromEnv() (Config, error) {
	token := os.Getenv("BITBUCKET_API_TOKEN")
	if token == "" {
		return Config{}, &ConfigurationError{
			Message: "BITBUCKET_API_TOKEN environment variable is required. " +
				"Generate a Personal Access Token in Bitbucket: " +
				"Manage Account → HTTP access tokens → Create token",
		}
	}

	// Support BITBUCKET_URL (full URL) or BITBUCKET_HOST (domain only)
	baseURL := os.Getenv("BITBUCKET_URL")
	if baseURL == "" {
		host := os.Getenv("BITBUCKET_HOST")
		if host == "" {
			return Config{}, &ConfigurationError{
				Message: "either BITBUCKET_URL or BITBUCKET_HOST environment variable is required. " +
					"Example: BITBUCKET_HOST=git.company.se",
			}
		}
		// Strip protocol if accidentally included
		host = strings.TrimPrefix(host, "https://")
		host = strings.TrimPrefix(host, "http://")
		baseURL = "https://" + host
	}

	// Normalize: remove trailing slash
	baseURL = strings.TrimRight(baseURL, "/")

	return Config{BaseURL: baseURL, APIToken: token}, nil
}

// RestAPIURL returns the base URL for core REST API endpoints.
func (c Config) RestAPIURL() string {
	return c.BaseURL + "/rest/api/latest"
}

// SearchAPIURL returns the base URL for the search API endpoints.
func (c Config) SearchAPIURL() string {
	return c.BaseURL + "/rest/search/latest"
}
