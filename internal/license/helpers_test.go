package license

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// goldenLicense was signed offline by the key embedded in premium builds.
const goldenLicense = "CG1.eyJwcm9kdWN0X2lkIjoiQ2ljYWRhR2FsbGVyeSIsIm9yZGVyX2lkIjoiR09MREVOLTAwMDEiLCJlbWFpbCI6ImdvbGRlbkBleGFtcGxlLmNvbSIsImlzc3VlZF9hdCI6MTc2NzIyNTYwMCwiZXhwaXJlc19hdCI6bnVsbH0.mTv_bparm-7er1xxLsoUL1BEjV5oETMPUbsnAPt0v4B9cE39Cv0LTr3I1OPSRRC3EMk37PTW_84okywflRZyBw"

type testSigner struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newTestSigner(t *testing.T) testSigner {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return testSigner{pub: pub, priv: priv}
}

func (s testSigner) sign(rec Record) Record {
	rec.Signature = ed25519.Sign(s.priv, rec.CanonicalClaims())
	return rec
}

func (s testSigner) issue(orderID, email string) string {
	rec := NewRecord(ProductID, orderID, email, time.Now(), time.Time{})
	return Encode(s.sign(rec))
}

func (s testSigner) issueRecord(rec Record) string {
	return Encode(s.sign(rec))
}
