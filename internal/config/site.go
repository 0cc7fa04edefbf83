package config

import (
	"net/url"
	"strings"
)

// SiteConfig holds settings for one site.
type SiteConfig struct {
	// Cookie is sent with every request to the site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are extra HTTP headers sent with every request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Depth overrides the global maximum depth. Zero keeps the global value.
	Depth int `yaml:"depth,omitempty"`

	// Target overrides the internal URL prefix.
	Target string `yaml:"target,omitempty"`

	// Exclude lists URL prefixes that are never crawled. Entries are added
	// to the ones given on the command line.
	Exclude []string `yaml:"exclude,omitempty"`

	// IgnorePatterns are path globs that are never crawled.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns are path globs; when set, only matching paths are crawled.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// File represents the structure of the .deadlink configuration file.
type File struct {
	// Sites maps a host (e.g., "docs.example.com") to its configuration.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults applies to all sites unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for host merged over the defaults.
// host may also be a full URL; its host part is used then.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	result.Headers = copyHeaders(cf.Defaults.Headers)

	siteConfig, ok := cf.Sites[siteKey(host)]
	if !ok {
		return result
	}

	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.Depth != 0 {
		result.Depth = siteConfig.Depth
	}
	if siteConfig.Target != "" {
		result.Target = siteConfig.Target
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		for k, v := range siteConfig.Headers {
			result.Headers[k] = v
		}
	}
	if len(siteConfig.Exclude) > 0 {
		result.Exclude = append(append([]string{}, result.Exclude...), siteConfig.Exclude...)
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}
	return result
}

// siteKey reduces a URL or host to the lower-case host used as map key.
func siteKey(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil {
			s = u.Host
		}
	}
	return strings.ToLower(s)
}

func copyHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
