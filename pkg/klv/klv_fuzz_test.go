package klv

import "testing"

func FuzzDecode(f *testing.F) {
	f.Add([]byte{0x06, 0x0e, 0x2b, 0x34, 0x02, 0x04, 0x01, 0, 0, 0, 0, 0, 0, 0, 0, 0x02, 0x00})
	f.Add([]byte{0x81})

	f.Fuzz(func(t *testing.T, msg []byte) {
		key, value, err := Decode(msg, KeyLength)
		if err != nil {
			return
		}
		again, err := Encode(key, value)
		if err != nil {
			t.Fatalf("re-encode: %v", err)
		}
		if _, _, err := Decode(again, KeyLength); err != nil {
			t.Fatalf("re-decode: %v", err)
		}
	})
}
