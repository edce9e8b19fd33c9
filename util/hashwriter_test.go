package util

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"testing"
)

func TestHashWriter(t *testing.T) {
	const input = "hello1 hello2 hello3 hello4 hello5abcdefghijklmnopqrstuvwxyz0123456789"
	const goalMD5 = "0101fc798d94a730b0f0bf1bd2cc1959"
	const goalSHA256 = "fef15edd82b33633582c723562d192fec2d2003df12d4aeac89df17c279a1658"

	var w = new(bytes.Buffer)
	hw := NewHashWriter(w, map[string]hash.Hash{
		"md5":    md5.New(),
		"sha256": sha256.New(),
	})
	hw.Write([]byte(input))
	if w.String() != input {
		t.Errorf("Received %q, expected %q", w.String(), input)
	}
	sums := hw.HexSums()
	if sums["md5"] != goalMD5 {
		t.Errorf("Received %s, expected %s", sums["md5"], goalMD5)
	}
	if sums["sha256"] != goalSHA256 {
		t.Errorf("Received %s, expected %s", sums["sha256"], goalSHA256)
	}
	if hex.EncodeToString(hw.Sum("md5")) != goalMD5 {
		t.Errorf("Received %x, expected %s", hw.Sum("md5"), goalMD5)
	}
	if hw.Sum("sha1") != nil {
		t.Errorf("Received %x, expected nil", hw.Sum("sha1"))
	}
}

func TestHashWriterPlain(t *testing.T) {
	hw := NewHashWriterPlain(map[string]hash.Hash{"md5": md5.New()})
	hw.Write([]byte("hello"))
	got := hw.HexSums()["md5"]
	if got != "5d41402abc4b2a76b9719d911017c592" {
		t.Errorf("Received %s, expected %s", got, "5d41402abc4b2a76b9719d911017c592")
	}
}
