package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomain(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "bare address", input: "alice@Example.COM", want: "example.com"},
		{name: "display name", input: "Alice <alice@mail.example.org>", want: "mail.example.org"},
		{name: "return path brackets", input: "<bounce@y.com>", want: "y.com"},
		{name: "url netloc", input: "https://Login.Example.net/path", want: "login.example.net"},
		{name: "no host", input: "just a name", want: ""},
		{name: "unparseable", input: " %ZZ Broken ", want: "%zz broken"},
		{name: "short tld not an address", input: "a@b.c", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Domain(tt.input))
		})
	}
}

func TestLinks(t *testing.T) {
	body := `See https://a.example/x and <http://10.0.0.1/login> or "https://b.example/?q=1".`
	assert.Equal(t, []string{
		"https://a.example/x",
		"http://10.0.0.1/login",
		"https://b.example/?q=1",
	}, Links(body))

	assert.Empty(t, Links("no links here"))
	assert.NotNil(t, Links(""))
}

func TestIsIPLink(t *testing.T) {
	assert.True(t, IsIPLink("http://123.45.67.89/login"))
	assert.True(t, IsIPLink("https://1.2.3.4:8443/"))
	assert.True(t, IsIPLink("http://1.2.3.4"))
	assert.False(t, IsIPLink("http://1.2.3.4.example.com/"))
	assert.False(t, IsIPLink("https://example.com/1.2.3.4"))
}

func TestRegisteredDomain(t *testing.T) {
	assert.Equal(t, "example.co.uk", RegisteredDomain("mail.login.example.co.uk"))
	assert.Equal(t, "example.com", RegisteredDomain("Example.com:8080"))
	assert.Equal(t, "", RegisteredDomain(""))
	assert.Equal(t, "localhost", RegisteredDomain("localhost"))
}
