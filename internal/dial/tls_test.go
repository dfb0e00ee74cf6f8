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

package dial

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// generateTestCerts creates test certificates in a temporary directory
// Returns: certDir, caCertFile, clientCertFile, clientKeyFile, invalidPemFile
func generateTestCerts(t *testing.T) (string, string, string, string, string) {
	certDir := t.TempDir()

	caKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	caTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test CA"},
			CommonName:   "Test CA",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	caCertDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	require.NoError(t, err)

	caCertFile := filepath.Join(certDir, "ca-cert.pem")
	require.NoError(t, os.WriteFile(caCertFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caCertDER}), 0644))

	clientKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	clientTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject: pkix.Name{
			Organization: []string{"Relay Client"},
			CommonName:   "dial-relay",
		},
		NotBefore:   time.Now(),
		NotAfter:    time.Now().Add(24 * time.Hour),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	clientCertDER, err := x509.CreateCertificate(rand.Reader, clientTemplate, caTemplate, &clientKey.PublicKey, caKey)
	require.NoError(t, err)

	clientCertFile := filepath.Join(certDir, "client-cert.pem")
	require.NoError(t, os.WriteFile(clientCertFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: clientCertDER}), 0644))

	clientKeyFile := filepath.Join(certDir, "client-key.pem")
	clientKeyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(clientKey)})
	require.NoError(t, os.WriteFile(clientKeyFile, clientKeyPEM, 0600))

	invalidPemFile := filepath.Join(certDir, "invalid.pem")
	require.NoError(t, os.WriteFile(invalidPemFile, []byte("not a valid pem file"), 0644))

	return certDir, caCertFile, clientCertFile, clientKeyFile, invalidPemFile
}

func TestBuildTLSConfig(t *testing.T) {
	t.Run("should return nil TLS config when no custom options specified", func(t *testing.T) {
		tlsConfig, err := buildTLSConfig(ClientConfig{BaseURL: "https://localhost:8000"})
		assert.NoError(t, err)
		assert.Nil(t, tlsConfig, "should return nil to use Go's default TLS config")
	})

	t.Run("should load custom CA certificate", func(t *testing.T) {
		_, caCertFile, _, _, _ := generateTestCerts(t)

		tlsConfig, err := buildTLSConfig(ClientConfig{TLSCACertFile: caCertFile})
		require.NoError(t, err)
		require.NotNil(t, tlsConfig)
		assert.NotNil(t, tlsConfig.RootCAs)
		assert.False(t, tlsConfig.InsecureSkipVerify)
	})

	t.Run("should load client certificate and key for mTLS", func(t *testing.T) {
		_, caCertFile, clientCertFile, clientKeyFile, _ := generateTestCerts(t)

		tlsConfig, err := buildTLSConfig(ClientConfig{
			TLSCACertFile:     caCertFile,
			TLSClientCertFile: clientCertFile,
			TLSClientKeyFile:  clientKeyFile,
		})
		require.NoError(t, err)
		require.NotNil(t, tlsConfig)
		assert.NotNil(t, tlsConfig.RootCAs)
		assert.Len(t, tlsConfig.Certificates, 1)
	})

	t.Run("should set TLS version constraints", func(t *testing.T) {
		tlsConfig, err := buildTLSConfig(ClientConfig{
			TLSMinVersion: tls.VersionTLS12,
			TLSMaxVersion: tls.VersionTLS13,
		})
		require.NoError(t, err)
		require.NotNil(t, tlsConfig)
		assert.Equal(t, uint16(tls.VersionTLS12), tlsConfig.MinVersion)
		assert.Equal(t, uint16(tls.VersionTLS13), tlsConfig.MaxVersion)
	})

	t.Run("should default to a TLS 1.2 minimum and honour insecure mode", func(t *testing.T) {
		_, caCertFile, _, _, _ := generateTestCerts(t)

		tlsConfig, err := buildTLSConfig(ClientConfig{TLSInsecureSkipVerify: true, TLSCACertFile: caCertFile})
		require.NoError(t, err)
		require.NotNil(t, tlsConfig)
		assert.True(t, tlsConfig.InsecureSkipVerify)
		assert.Equal(t, uint16(tls.VersionTLS12), tlsConfig.MinVersion)
		assert.Zero(t, tlsConfig.MaxVersion)
	})

	failures := []struct {
		name    string
		config  func(certDir, caCertFile, clientCertFile, clientKeyFile, invalidPemFile string) ClientConfig
		wantErr string
	}{
		{
			name: "missing CA certificate file",
			config: func(certDir, _, _, _, _ string) ClientConfig {
				return ClientConfig{TLSCACertFile: filepath.Join(certDir, "nonexistent.pem")}
			},
			wantErr: "failed to read CA certificate file",
		},
		{
			name: "invalid CA certificate PEM",
			config: func(_, _, _, _, invalidPemFile string) ClientConfig {
				return ClientConfig{TLSCACertFile: invalidPemFile}
			},
			wantErr: "failed to parse CA certificate",
		},
		{
			name: "missing client certificate file",
			config: func(certDir, _, _, clientKeyFile, _ string) ClientConfig {
				return ClientConfig{
					TLSClientCertFile: filepath.Join(certDir, "nonexistent-cert.pem"),
					TLSClientKeyFile:  clientKeyFile,
				}
			},
			wantErr: "failed to load key pair",
		},
		{
			name: "cert without key",
			config: func(_, _, clientCertFile, _, _ string) ClientConfig {
				return ClientConfig{TLSClientCertFile: clientCertFile}
			},
			wantErr: "both cert_file and key_file must be set",
		},
		{
			name: "key without cert",
			config: func(_, _, _, clientKeyFile, _ string) ClientConfig {
				return ClientConfig{TLSClientKeyFile: clientKeyFile}
			},
			wantErr: "both cert_file and key_file must be set",
		},
	}
	for _, tt := range failures {
		t.Run("should fail with "+tt.name, func(t *testing.T) {
			tlsConfig, err := buildTLSConfig(tt.config(generateTestCerts(t)))
			assert.Nil(t, tlsConfig)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("should carry all TLS options into the session transport", func(t *testing.T) {
		_, caCertFile, clientCertFile, clientKeyFile, _ := generateTestCerts(t)

		client, err := NewClient(ClientConfig{
			BaseURL:           "https://localhost:8000",
			TLSCACertFile:     caCertFile,
			TLSClientCertFile: clientCertFile,
			TLSClientKeyFile:  clientKeyFile,
			TLSMinVersion:     tls.VersionTLS12,
		}, nil)
		require.NoError(t, err)
		t.Cleanup(client.Close)

		transport, ok := client.getSession().GetClient().Transport.(*http.Transport)
		require.True(t, ok, "expected *http.Transport")
		require.NotNil(t, transport.TLSClientConfig)
		assert.Len(t, transport.TLSClientConfig.Certificates, 1)
		assert.Equal(t, uint16(tls.VersionTLS12), transport.TLSClientConfig.MinVersion)
	})
}
