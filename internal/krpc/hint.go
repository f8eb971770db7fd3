package krpc

import "github.com/zeebo/bencode"

// TransactionIDHint makes a best-effort attempt to recover the
// transaction id from a message that failed full decoding, so the
// transport can address a protocol-error reply. It never fails; the
// second return is false when no id could be recovered.
func TransactionIDHint(raw []byte) (string, bool) {
	var top map[string]interface{}
	if err := bencode.DecodeBytes(raw, &top); err != nil {
		return "", false
	}
	tid, ok := top[keyTransactionID].(string)
	if !ok || tid == "" {
		return "", false
	}
	return tid, true
}
