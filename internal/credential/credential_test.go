package credential_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/muttd/internal/credential"
)

func writeCredsFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "creds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeCredsFile(t, `
snmpv3_credentials:
  - username: opuser
    credentials:
      - priority: 1
        auth_type: SHA
        auth_password: "oldpass"
        priv_type: AES
        priv_password: "oldpriv"
        active: true
      - priority: 2
        auth_type: SHA256
        auth_password: "newpass"
        priv_type: AES256
        priv_password: "newpriv"
        active: false
`)

	sets, err := credential.LoadFile(path)
	require.NoError(t, err)
	require.Contains(t, sets, "opuser")

	set := sets["opuser"]
	require.Len(t, set.Credentials, 2)
	assert.True(t, set.Credentials[0].Active)
	assert.False(t, set.Credentials[1].Active)
}

func TestSet_ActiveSorted(t *testing.T) {
	set := credential.Set{
		Username: "u1",
		Credentials: []credential.Credential{
			{Priority: 2, Active: true},
			{Priority: 1, Active: true},
			{Priority: 0, Active: false},
		},
	}

	active := set.ActiveSorted()
	require.Len(t, active, 2)
	assert.Equal(t, 1, active[0].Priority)
	assert.Equal(t, 2, active[1].Priority)
}

func TestSet_Preferred(t *testing.T) {
	set := credential.Set{
		Credentials: []credential.Credential{
			{Priority: 5, Active: true, AuthPassword: "a"},
			{Priority: 1, Active: true, AuthPassword: "b"},
		},
	}

	preferred, ok := set.Preferred()
	require.True(t, ok)
	assert.Equal(t, 1, preferred.Priority)
	assert.Equal(t, "b", preferred.AuthPassword)
}

func TestSet_Preferred_NoneActive(t *testing.T) {
	set := credential.Set{Credentials: []credential.Credential{{Priority: 1, Active: false}}}
	_, ok := set.Preferred()
	assert.False(t, ok)
}

// Credential rotation: set [{priority:1, active:true, auth_password:"old"},
// {priority:2, active:false, auth_password:"new"}]; flip active flags;
// ActiveSorted/Preferred returns exactly one credential with priority=2,
// auth_password="new".
func TestCredentialRotation(t *testing.T) {
	set := credential.Set{
		Username: "u1",
		Credentials: []credential.Credential{
			{Priority: 1, Active: true, AuthPassword: "old"},
			{Priority: 2, Active: false, AuthPassword: "new"},
		},
	}

	set.Credentials[0].Active = false
	set.Credentials[1].Active = true

	active := set.ActiveSorted()
	require.Len(t, active, 1)
	assert.Equal(t, 2, active[0].Priority)
	assert.Equal(t, "new", active[0].AuthPassword)

	preferred, ok := set.Preferred()
	require.True(t, ok)
	assert.Equal(t, 2, preferred.Priority)
}

func TestSet_Next(t *testing.T) {
	set := credential.Set{
		Credentials: []credential.Credential{
			{Priority: 1, Active: true},
			{Priority: 2, Active: true},
			{Priority: 3, Active: true},
		},
	}

	next, ok := set.Next(set.Credentials[0])
	require.True(t, ok)
	assert.Equal(t, 2, next.Priority)

	_, ok = set.Next(set.Credentials[2])
	assert.False(t, ok)
}
