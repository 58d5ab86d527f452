package toolcli

import (
	"fmt"
	"regexp"
	"strings"
)

// cloudURL is a parsed scheme://bucket/key reference.
type cloudURL struct {
	Scheme string
	Bucket string
	Key    string
}

func (u cloudURL) String() string {
	if u.Key == "" {
		return fmt.Sprintf("%s://%s", u.Scheme, u.Bucket)
	}
	return fmt.Sprintf("%s://%s/%s", u.Scheme, u.Bucket, u.Key)
}

// withKey returns a URL for key in the same bucket.
func (u cloudURL) withKey(key string) cloudURL {
	u.Key = key
	return u
}

// parseURL parses s as a cloud URL. ok is false for local paths.
func parseURL(s string) (cloudURL, bool, error) {
	scheme, rest, found := strings.Cut(s, "://")
	if !found {
		return cloudURL{}, false, nil
	}
	if scheme == "" || scheme == "file" {
		return cloudURL{}, false, nil
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return cloudURL{}, true, fmt.Errorf("invalid URL %q: missing bucket", s)
	}
	return cloudURL{Scheme: scheme, Bucket: bucket, Key: key}, true, nil
}

// hasWildcard reports whether key contains glob characters.
func hasWildcard(key string) bool {
	return strings.ContainsAny(key, "*?[")
}

// literalPrefix returns the part of key before the first glob character.
func literalPrefix(key string) string {
	if i := strings.IndexAny(key, "*?["); i >= 0 {
		return key[:i]
	}
	return key
}

// compileGlob turns a gsutil wildcard into a regexp. "*" and "?" stay within
// one path segment, "**" crosses segments and "[!...]" negates a class.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '[':
			// A "]" right after "[" or "[!" is a member of the class.
			j := i + 1
			if j < len(pattern) && pattern[j] == '!' {
				j++
			}
			if j < len(pattern) && pattern[j] == ']' {
				j++
			}
			end := strings.IndexByte(pattern[j:], ']')
			if end < 0 {
				return nil, fmt.Errorf("invalid wildcard %q: unterminated character class", pattern)
			}
			end += j

			class := pattern[i+1 : end]
			switch {
			case strings.HasPrefix(class, "!"):
				class = "^" + class[1:]
			case strings.HasPrefix(class, "^"):
				class = `\^` + class[1:]
			}
			b.WriteString("[" + class + "]")
			i = end
		default:
			b.WriteString(regexp.QuoteMeta(pattern[i : i+1]))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
