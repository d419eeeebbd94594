package screener

import "testing"

func FuzzDecodeReply(f *testing.F) {
	f.Add([]byte(`{"status":0,"cpl_uuids":[]}`))
	f.Add([]byte(`{"status":8,"err_msg":"Invalid playlist supplied","trace":"x"}`))
	f.Add([]byte(``))

	f.Fuzz(func(t *testing.T, payload []byte) {
		reply, err := DecodeReply(payload)
		if err != nil {
			return
		}
		var body map[string]any
		_ = reply.Decode(&body)
	})
}
