package tlspolicy

import (
	"crypto/tls"
	"testing"
)

func TestValidateDefaults(t *testing.T) {
	p := Validate("/path/to/bundle")
	if !p.VerifyPeer || !p.VerifyHostname {
		t.Errorf("Validate() should verify both peer and hostname: %+v", p)
	}
	if p.AllowSelfSigned {
		t.Errorf("Validate() should not allow self-signed certs")
	}
	if p.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %#x, want TLS 1.2", p.MinVersion)
	}
	if !p.SNI {
		t.Errorf("Validate() should enable SNI")
	}
	if p.CABundlePath != "/path/to/bundle" {
		t.Errorf("CABundlePath = %q, want the path passed in", p.CABundlePath)
	}
}

func TestObserveDefaults(t *testing.T) {
	p := Observe()
	if p.VerifyPeer || p.VerifyHostname {
		t.Errorf("Observe() should not verify peer or hostname: %+v", p)
	}
	if !p.AllowSelfSigned {
		t.Errorf("Observe() should allow self-signed certs")
	}
	if !p.SNI {
		t.Errorf("Observe() should enable SNI")
	}
}

func TestBuildSetsServerNameWhenSNIEnabled(t *testing.T) {
	p := Observe()
	cfg, err := p.Build("mail.example")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.ServerName != "mail.example" {
		t.Errorf("ServerName = %q, want mail.example", cfg.ServerName)
	}
	if !cfg.InsecureSkipVerify {
		t.Errorf("InsecureSkipVerify should be true when VerifyPeer is false")
	}
}

func TestBuildOmitsServerNameWhenSNIDisabled(t *testing.T) {
	p := Policy{SNI: false}
	cfg, err := p.Build("mail.example")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.ServerName != "" {
		t.Errorf("ServerName = %q, want empty (SNI disabled)", cfg.ServerName)
	}
}

func TestBuildVerifyPeerWithoutHostnameSetsVerifyConnection(t *testing.T) {
	p := Policy{VerifyPeer: true, VerifyHostname: false, SNI: true}
	cfg, err := p.Build("mail.example")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.VerifyConnection == nil {
		t.Errorf("VerifyConnection should be set when VerifyPeer && !VerifyHostname")
	}
	if !cfg.InsecureSkipVerify {
		t.Errorf("InsecureSkipVerify should be true so our own VerifyConnection runs")
	}
}

func TestBuildFullVerificationUsesDefaultPath(t *testing.T) {
	p := Policy{VerifyPeer: true, VerifyHostname: true, SNI: true}
	cfg, err := p.Build("mail.example")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.InsecureSkipVerify {
		t.Errorf("InsecureSkipVerify should be false for full verification without AllowSelfSigned")
	}
	if cfg.VerifyConnection != nil {
		t.Errorf("VerifyConnection should be left nil, letting crypto/tls do full verification")
	}
}
