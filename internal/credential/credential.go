// Package credential models per-user SNMPv3 credential sets with
// priority-ordered rotation.
package credential

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// AuthType is the SNMPv3 USM authentication protocol.
type AuthType string

const (
	AuthMD5    AuthType = "MD5"
	AuthSHA    AuthType = "SHA"
	AuthSHA224 AuthType = "SHA224"
	AuthSHA256 AuthType = "SHA256"
	AuthSHA384 AuthType = "SHA384"
	AuthSHA512 AuthType = "SHA512"
	AuthNone   AuthType = "NONE"
)

// PrivType is the SNMPv3 USM privacy (encryption) protocol.
type PrivType string

const (
	PrivDES    PrivType = "DES"
	Priv3DES   PrivType = "3DES"
	PrivAES    PrivType = "AES"
	PrivAES128 PrivType = "AES128"
	PrivAES192 PrivType = "AES192"
	PrivAES256 PrivType = "AES256"
	PrivNone   PrivType = "NONE"
)

// Credential is one priority-ordered entry in a user's credential set.
type Credential struct {
	Priority     int      `yaml:"priority"`
	AuthType     AuthType `yaml:"auth_type"`
	AuthPassword string   `yaml:"auth_password"`
	PrivType     PrivType `yaml:"priv_type"`
	PrivPassword string   `yaml:"priv_password"`
	Active       bool     `yaml:"active"`
}

// Set groups every Credential registered for a single SNMPv3 username.
type Set struct {
	Username    string
	Credentials []Credential
}

// ActiveSorted returns the active credentials in the set, ascending by
// priority (lower number = preferred). The returned slice is a copy; the
// set itself is not mutated.
func (s Set) ActiveSorted() []Credential {
	active := make([]Credential, 0, len(s.Credentials))
	for _, c := range s.Credentials {
		if c.Active {
			active = append(active, c)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].Priority < active[j].Priority
	})
	return active
}

// Preferred returns the highest-priority active credential, for initial
// USM registration. ok is false if the set has no active credential.
func (s Set) Preferred() (Credential, bool) {
	active := s.ActiveSorted()
	if len(active) == 0 {
		return Credential{}, false
	}
	return active[0], true
}

// Next returns the active credential immediately after current's priority,
// for rotation after an authentication failure. ok is false if current is
// already the lowest-priority active credential.
func (s Set) Next(current Credential) (Credential, bool) {
	active := s.ActiveSorted()
	for i, c := range active {
		if c.Priority == current.Priority && i+1 < len(active) {
			return active[i+1], true
		}
	}
	return Credential{}, false
}

type fileFormat struct {
	Credentials []userEntry `yaml:"snmpv3_credentials"`
}

type userEntry struct {
	Username    string       `yaml:"username"`
	Credentials []entryCreds `yaml:"credentials"`
}

type entryCreds struct {
	Priority     int      `yaml:"priority"`
	AuthType     AuthType `yaml:"auth_type"`
	AuthPassword string   `yaml:"auth_password"`
	PrivType     PrivType `yaml:"priv_type"`
	PrivPassword string   `yaml:"priv_password"`
	Active       *bool    `yaml:"active"`
}

// LoadFile parses the SNMPv3 credentials YAML file into one Set per
// username. An entry with no explicit `active` key defaults to active.
func LoadFile(path string) (map[string]Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("credential: read %s: %w", path, err)
	}

	var doc fileFormat
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("credential: parse %s: %w", path, err)
	}

	sets := make(map[string]Set, len(doc.Credentials))
	for _, u := range doc.Credentials {
		creds := make([]Credential, 0, len(u.Credentials))
		for _, c := range u.Credentials {
			active := true
			if c.Active != nil {
				active = *c.Active
			}
			creds = append(creds, Credential{
				Priority:     c.Priority,
				AuthType:     c.AuthType,
				AuthPassword: c.AuthPassword,
				PrivType:     c.PrivType,
				PrivPassword: c.PrivPassword,
				Active:       active,
			})
		}
		sets[u.Username] = Set{Username: u.Username, Credentials: creds}
	}
	return sets, nil
}
