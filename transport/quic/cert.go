// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package quic

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"math/big"
	"net"
	"sync"
	"time"
)

var (
	cachedCert     tls.Certificate
	cachedCertErr  error
	cachedCertOnce sync.Once
)

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// devCertificate returns a self-signed certificate derived from a fixed seed. It
// is identical for every node, which is only suitable for local networks
func devCertificate() (tls.Certificate, error) {
	cachedCertOnce.Do(func() {
		seed := sha256.Sum256([]byte("miniethnet-quic-dev-key"))
		priv := ed25519.NewKeyFromSeed(seed[:])
		template := x509.Certificate{
			SerialNumber: big.NewInt(1),
			NotBefore:    time.Unix(0, 0),
			NotAfter:     time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC),
			KeyUsage:     x509.KeyUsageDigitalSignature,
			ExtKeyUsage: []x509.ExtKeyUsage{
				x509.ExtKeyUsageServerAuth,
				x509.ExtKeyUsageClientAuth,
			},
			DNSNames:    []string{serverName},
			IPAddresses: []net.IP{net.ParseIP("127.0.0.1")},
		}
		der, err := x509.CreateCertificate(
			zeroReader{},
			&template,
			&template,
			priv.Public(),
			priv,
		)
		if err != nil {
			cachedCertErr = err
			return
		}
		cachedCert = tls.Certificate{
			Certificate: [][]byte{der},
			PrivateKey:  priv,
		}
	})
	return cachedCert, cachedCertErr
}
