package curl

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net/url"
)

// tlsConfig maps the two independent verification flags onto crypto/tls.
// Go only offers all-or-nothing verification, so the partial modes disable
// the built-in check and run the remaining half in VerifyConnection.
func tlsConfig(spec *Spec) *tls.Config {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		RootCAs:    spec.RootCAs(),
	}

	switch {
	case spec.VerifyHost() && spec.VerifyPeer():
		return cfg
	case spec.VerifyPeer():
		cfg.InsecureSkipVerify = true
		cfg.VerifyConnection = verifyChain(spec.RootCAs())
	case spec.VerifyHost():
		cfg.InsecureSkipVerify = true
		cfg.VerifyConnection = verifyHostname(hostOf(spec.URL()))
	default:
		cfg.InsecureSkipVerify = true
	}
	return cfg
}

// verifyChain checks the certificate chain against roots without matching
// the host name.
func verifyChain(roots *x509.CertPool) func(tls.ConnectionState) error {
	return func(cs tls.ConnectionState) error {
		if len(cs.PeerCertificates) == 0 {
			return errors.New("tls: server presented no certificates")
		}
		intermediates := x509.NewCertPool()
		for _, cert := range cs.PeerCertificates[1:] {
			intermediates.AddCert(cert)
		}
		_, err := cs.PeerCertificates[0].Verify(x509.VerifyOptions{
			Roots:         roots,
			Intermediates: intermediates,
		})
		return err
	}
}

// verifyHostname checks that the leaf certificate names the server, without
// checking who issued it. fallback covers IP targets, which send no SNI.
func verifyHostname(fallback string) func(tls.ConnectionState) error {
	return func(cs tls.ConnectionState) error {
		if len(cs.PeerCertificates) == 0 {
			return errors.New("tls: server presented no certificates")
		}
		name := cs.ServerName
		if name == "" {
			name = fallback
		}
		return cs.PeerCertificates[0].VerifyHostname(name)
	}
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
