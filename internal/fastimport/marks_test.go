package fastimport

import (
	"strings"
	"testing"
)

func TestScanLastValidMarkContiguous(t *testing.T) {
	r := strings.NewReader(":1 aaa\n:2 bbb\n:3 ccc\n")
	assertEqual(t, scanLastValidMark(r), 3)
}

func TestScanLastValidMarkGap(t *testing.T) {
	r := strings.NewReader(":1 aaa\n:2 bbb\n:5 eee\n")
	assertEqual(t, scanLastValidMark(r), 2)
}

func TestScanLastValidMarkDuplicate(t *testing.T) {
	r := strings.NewReader(":1 aaa\n:2 bbb\n:2 bbb\n")
	assertEqual(t, scanLastValidMark(r), 0)
}

func TestScanLastValidMarkDisorder(t *testing.T) {
	r := strings.NewReader(":2 bbb\n:1 aaa\n")
	assertEqual(t, scanLastValidMark(r), 0)
}

func TestScanLastValidMarkBlankLinesSkipped(t *testing.T) {
	r := strings.NewReader(":1 aaa\n\n:2 bbb\n\n:3 ccc\n")
	assertEqual(t, scanLastValidMark(r), 3)
}

func TestScanLastValidMarkEmpty(t *testing.T) {
	r := strings.NewReader("")
	assertEqual(t, scanLastValidMark(r), 0)
}

func TestScanLastValidMarkCorruptLine(t *testing.T) {
	r := strings.NewReader(":1 aaa\nnonsense\n")
	assertEqual(t, scanLastValidMark(r), 0)
}
