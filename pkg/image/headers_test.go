package image

import (
	"encoding/binary"
	"testing"
)

func dosHeader(peOffset uint32) []byte {
	dos := make([]byte, dosHeaderSize)
	dos[0], dos[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(dos[60:], peOffset)
	return dos
}

func TestPEHeaderOffset(t *testing.T) {
	off, err := peHeaderOffset(dosHeader(0x100))
	if err != nil || off != 0x100 {
		t.Errorf("peHeaderOffset = (0x%X, %v), want (0x100, nil)", off, err)
	}
}

func TestPEHeaderOffsetAcceptsLargeLfanew(t *testing.T) {
	// e_lfanew is bounded only by the image layout; headers placed past a
	// few KiB of stub are still valid.
	off, err := peHeaderOffset(dosHeader(0x2000))
	if err != nil || off != 0x2000 {
		t.Errorf("peHeaderOffset = (0x%X, %v), want (0x2000, nil)", off, err)
	}
}

func TestPEHeaderOffsetRejectsBadInput(t *testing.T) {
	if _, err := peHeaderOffset(make([]byte, 16)); err == nil {
		t.Error("truncated DOS header accepted")
	}
	bad := dosHeader(0x100)
	bad[0], bad[1] = 'Z', 'M'
	if _, err := peHeaderOffset(bad); err == nil {
		t.Error("wrong DOS signature accepted")
	}
}

func TestIsPESignature(t *testing.T) {
	if !isPESignature([]byte{'P', 'E', 0, 0}) {
		t.Error("valid PE signature rejected")
	}
	for _, sig := range [][]byte{
		{'P', 'E'},
		{'P', 'E', 1, 0},
		{'M', 'Z', 0, 0},
		nil,
	} {
		if isPESignature(sig) {
			t.Errorf("invalid signature % X accepted", sig)
		}
	}
}
