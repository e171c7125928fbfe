package xid

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/binary"
	"strings"
	"time"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// New returns prefix-<id>. The id is 48 bits of millisecond clock followed
// by 64 random bits, so ids sort by creation time.
func New(prefix string) string {
	var clock [8]byte
	binary.BigEndian.PutUint64(clock[:], uint64(time.Now().UnixMilli()))

	buf := make([]byte, 14)
	copy(buf[:6], clock[2:])
	_, _ = rand.Read(buf[6:])
	return prefix + "-" + strings.ToLower(encoding.EncodeToString(buf))
}
