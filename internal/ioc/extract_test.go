package ioc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func atomValues(atoms []Atom, t IndicatorType) []string {
	var out []string
	for _, a := range atoms {
		if a.Type == t {
			out = append(out, a.Value)
		}
	}
	return out
}

func TestExtractIPv4(t *testing.T) {
	atoms := Extract("raw_message", "conn from 203.0.113.7 to 10.0.0.5 port 443")
	assert.Equal(t, []string{"203.0.113.7", "10.0.0.5"}, atomValues(atoms, TypeIP))
}

func TestExtractIPv6(t *testing.T) {
	atoms := Extract("raw_message", "neighbor fe80::1 advertised 2001:db8:0:0:0:0:2:1")
	// Canonical form compresses the expanded address.
	assert.Equal(t, []string{"fe80::1", "2001:db8::2:1"}, atomValues(atoms, TypeIP))
}

func TestExtractIgnoresTimeAndVersionNoise(t *testing.T) {
	atoms := Extract("raw_message", "at 12:34:56 agent v1.2.33.444 said hello")
	// The timestamp is not valid IPv6 and the version string's octet 444
	// is out of range, so neither survives net.ParseIP.
	assert.Empty(t, atomValues(atoms, TypeIP))
}

func TestExtractHashes(t *testing.T) {
	md5 := "44d88612fea8a8f36de82e1278abb02f"
	sha1 := "3395856ce81f2b7382dee72602f798b642f14140"
	sha256 := "275a021bbfb6489e54d471899f7db9d1663fc695ec2fe2a2c4538aabf651fd0f"

	atoms := Extract("raw_message", "dropped "+md5+" and "+sha1+" and "+sha256)
	assert.Equal(t, []string{md5, sha1, sha256}, atomValues(atoms, TypeHash))
}

func TestExtractHashInsideLongerToken(t *testing.T) {
	sha256 := "275a021bbfb6489e54d471899f7db9d1663fc695ec2fe2a2c4538aabf651fd0f"
	atoms := Extract("raw_message", "wrote dropper_"+sha256+".bin to disk")
	assert.Equal(t, []string{sha256}, atomValues(atoms, TypeHash))
}

func TestExtractDomains(t *testing.T) {
	atoms := Extract("raw_message", "beacon to C2.Evil.Example.COM via cdn.example.net")
	assert.Equal(t, []string{"c2.evil.example.com", "cdn.example.net"}, atomValues(atoms, TypeDomain))
}

func TestExtractDeduplicatesWithinField(t *testing.T) {
	atoms := Extract("raw_message", "203.0.113.7 talked to 203.0.113.7 again")
	assert.Equal(t, []string{"203.0.113.7"}, atomValues(atoms, TypeIP))
}

func TestExtractOverlappingTypes(t *testing.T) {
	// A hex-shaped token that is also inside a hostname-ish string: both
	// passes report their own atom, nothing suppresses the other.
	text := "fetch http://evil.example.com/44d88612fea8a8f36de82e1278abb02f"
	atoms := Extract("raw_message", text)
	assert.Equal(t, []string{"44d88612fea8a8f36de82e1278abb02f"}, atomValues(atoms, TypeHash))
	assert.Contains(t, atomValues(atoms, TypeDomain), "evil.example.com")
}

func TestExtractEmptyText(t *testing.T) {
	assert.Empty(t, Extract("raw_message", ""))
}
