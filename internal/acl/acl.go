// Package acl models the access-control-list document returned by the
// storage tool's "acl get" command.
package acl

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

// Namespace is the XML namespace of AccessControlPolicy documents.
const Namespace = "http://s3.amazonaws.com/doc/2006-03-01/"

// Group grantee URIs.
const (
	AllUsersURI           = "http://acs.amazonaws.com/groups/global/AllUsers"
	AuthenticatedUsersURI = "http://acs.amazonaws.com/groups/global/AuthenticatedUsers"
)

// Default owner used by the fake tool when no owner is configured.
const (
	DefaultOwnerID      = "gsfake-owner"
	DefaultOwnerDisplay = "gsfake"
)

// ErrEmptyDocument is returned when parsing blank ACL text.
var ErrEmptyDocument = errors.New("empty ACL document")

// Permission is an ACL permission.
type Permission string

const (
	PermissionFullControl Permission = "FULL_CONTROL"
	PermissionRead        Permission = "READ"
	PermissionWrite       Permission = "WRITE"
	PermissionReadACP     Permission = "READ_ACP"
	PermissionWriteACP    Permission = "WRITE_ACP"
)

// Grantee types as they appear in xsi:type.
const (
	GranteeCanonicalUser = "CanonicalUser"
	GranteeGroup         = "Group"
)

// CannedACL is a predefined ACL name.
type CannedACL string

const (
	CannedPrivate                CannedACL = "private"
	CannedPublicRead             CannedACL = "public-read"
	CannedPublicReadWrite        CannedACL = "public-read-write"
	CannedAuthenticatedRead      CannedACL = "authenticated-read"
	CannedBucketOwnerRead        CannedACL = "bucket-owner-read"
	CannedBucketOwnerFullControl CannedACL = "bucket-owner-full-control"
)

// Policy is an AccessControlPolicy document.
type Policy struct {
	XMLName           xml.Name          `xml:"AccessControlPolicy"`
	Xmlns             string            `xml:"xmlns,attr,omitempty"`
	Owner             Owner             `xml:"Owner"`
	AccessControlList AccessControlList `xml:"AccessControlList"`
}

// Owner identifies the object owner.
type Owner struct {
	ID          string `xml:"ID"`
	DisplayName string `xml:"DisplayName,omitempty"`
}

// AccessControlList represents the list of grants.
type AccessControlList struct {
	Grants []Grant `xml:"Grant"`
}

// Grant represents a single grant in an ACL.
type Grant struct {
	Grantee    Grantee    `xml:"Grantee"`
	Permission Permission `xml:"Permission"`
}

// Grantee represents who is granted access.
type Grantee struct {
	XMLName     xml.Name `xml:"Grantee"`
	XsiType     string   `xml:"http://www.w3.org/2001/XMLSchema-instance type,attr"`
	ID          string   `xml:"ID,omitempty"`
	DisplayName string   `xml:"DisplayName,omitempty"`
	URI         string   `xml:"URI,omitempty"`
}

// Grants returns the grants of p.
func (p *Policy) Grants() []Grant {
	return p.AccessControlList.Grants
}

// HasGrant reports whether p grants perm to the grantee identified by
// idOrURI (a canonical user ID or a group URI).
func (p *Policy) HasGrant(idOrURI string, perm Permission) bool {
	for _, g := range p.AccessControlList.Grants {
		if g.Permission != perm {
			continue
		}
		if g.Grantee.ID == idOrURI || g.Grantee.URI == idOrURI {
			return true
		}
	}
	return false
}

func userGrant(id, display string, perm Permission) Grant {
	return Grant{
		Grantee:    Grantee{XsiType: GranteeCanonicalUser, ID: id, DisplayName: display},
		Permission: perm,
	}
}

func groupGrant(uri string, perm Permission) Grant {
	return Grant{
		Grantee:    Grantee{XsiType: GranteeGroup, URI: uri},
		Permission: perm,
	}
}

// Default returns the owner-only policy.
func Default(ownerID, ownerDisplay string) *Policy {
	return &Policy{
		Xmlns: Namespace,
		Owner: Owner{ID: ownerID, DisplayName: ownerDisplay},
		AccessControlList: AccessControlList{
			Grants: []Grant{userGrant(ownerID, ownerDisplay, PermissionFullControl)},
		},
	}
}

// FromCanned expands a canned ACL name into a policy.
func FromCanned(canned CannedACL, ownerID, ownerDisplay string) (*Policy, error) {
	p := Default(ownerID, ownerDisplay)

	switch canned {
	case CannedPrivate, CannedBucketOwnerRead, CannedBucketOwnerFullControl:
		// owner only
	case CannedPublicRead:
		p.AccessControlList.Grants = append(p.AccessControlList.Grants,
			groupGrant(AllUsersURI, PermissionRead))
	case CannedPublicReadWrite:
		p.AccessControlList.Grants = append(p.AccessControlList.Grants,
			groupGrant(AllUsersURI, PermissionRead),
			groupGrant(AllUsersURI, PermissionWrite))
	case CannedAuthenticatedRead:
		p.AccessControlList.Grants = append(p.AccessControlList.Grants,
			groupGrant(AuthenticatedUsersURI, PermissionRead))
	default:
		return nil, fmt.Errorf("invalid canned ACL %q", canned)
	}

	return p, nil
}

// Marshal renders p as an indented XML document with header.
func Marshal(p *Policy) ([]byte, error) {
	body, err := xml.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode ACL: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.Write(body)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Parse decodes an AccessControlPolicy document.
func Parse(text string) (*Policy, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDocument
	}

	var p Policy
	if err := xml.Unmarshal([]byte(text), &p); err != nil {
		return nil, fmt.Errorf("failed to decode ACL: %w", err)
	}
	return &p, nil
}
