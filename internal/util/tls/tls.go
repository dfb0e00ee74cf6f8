/*
Copyright 2026 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package tls builds TLS configs for the redis catalog cache and the relay listener.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
)

// Certificates names PEM files, optionally relative to Dir.
type Certificates struct {
	Dir        string `yaml:"dir"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	CaCertFile string `yaml:"ca_cert_file"`
}

func (c Certificates) IsEmpty() bool {
	return c == Certificates{}
}

// Paths returns the cert, key and CA paths joined with Dir. Unset files stay empty.
func (c Certificates) Paths() (certFile, keyFile, caCertFile string) {
	return JoinCertPath(c.Dir, c.CertFile), JoinCertPath(c.Dir, c.KeyFile), JoinCertPath(c.Dir, c.CaCertFile)
}

// Side selects how the CA pool is used: to verify servers or to verify clients.
type Side int

const (
	SideClient Side = iota
	SideServer
)

// NewConfig loads the key pair and CA pool named by certs.
// On the server side a CA file turns on mandatory client certificate verification.
func NewConfig(side Side, insecure bool, certs Certificates) (*tls.Config, error) {
	certFile, keyFile, caCertFile := certs.Paths()

	conf := &tls.Config{MinVersion: tls.VersionTLS12}
	if certFile != "" || keyFile != "" {
		if certFile == "" || keyFile == "" {
			return nil, fmt.Errorf("both cert_file and key_file must be set")
		}
		certificate, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load key pair %s: %w", certFile, err) // pragma: allowlist secret
		}
		conf.Certificates = []tls.Certificate{certificate}
	}

	if side == SideServer && len(conf.Certificates) == 0 {
		return nil, fmt.Errorf("server TLS requires cert_file and key_file")
	}

	if insecure && side == SideClient {
		conf.InsecureSkipVerify = true
		return conf, nil
	}
	if caCertFile == "" {
		return conf, nil
	}

	ca, err := os.ReadFile(caCertFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate file %s: %w", caCertFile, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("failed to parse CA certificate from %s", caCertFile)
	}
	if side == SideClient {
		conf.RootCAs = pool
	} else {
		conf.ClientCAs = pool
		conf.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return conf, nil
}

// JoinCertPath returns the cert path only when file is not empty.
func JoinCertPath(dir, file string) string {
	if len(file) > 0 {
		return filepath.Join(dir, file)
	}
	return ""
}
