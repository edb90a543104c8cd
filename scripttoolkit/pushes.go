package scripttoolkit

import "github.com/go-errors/errors"

// extractPushes walks a script linearly and returns every data item pushed
// onto the stack, in order, regardless of which OP_IF/OP_ELSE branch it
// sits in (branch opcodes are single bytes, not data pushes, so they never
// appear in the result). Because CompileDepositScript/CompileCommitScript
// only ever use ScriptBuilder.AddData for their fields, and never the
// OP_1..OP_16 / OP_0 small-integer shortcuts for field values, this gives a
// stable, fully positional view of everything we embedded at compile time.
func extractPushes(script []byte) ([][]byte, error) {
	var pushes [][]byte
	i := 0
	for i < len(script) {
		op := script[i]
		switch {
		case op == 0x00:
			pushes = append(pushes, []byte{})
			i++
		case op >= 0x01 && op <= 0x4b:
			n := int(op)
			if i+1+n > len(script) {
				return nil, errors.New("scripttoolkit: truncated push")
			}
			pushes = append(pushes, script[i+1:i+1+n])
			i += 1 + n
		case op == 0x4c: // OP_PUSHDATA1
			if i+2 > len(script) {
				return nil, errors.New("scripttoolkit: truncated OP_PUSHDATA1")
			}
			n := int(script[i+1])
			if i+2+n > len(script) {
				return nil, errors.New("scripttoolkit: truncated OP_PUSHDATA1 payload")
			}
			pushes = append(pushes, script[i+2:i+2+n])
			i += 2 + n
		case op == 0x4d: // OP_PUSHDATA2
			if i+3 > len(script) {
				return nil, errors.New("scripttoolkit: truncated OP_PUSHDATA2")
			}
			n := int(script[i+1]) | int(script[i+2])<<8
			if i+3+n > len(script) {
				return nil, errors.New("scripttoolkit: truncated OP_PUSHDATA2 payload")
			}
			pushes = append(pushes, script[i+3:i+3+n])
			i += 3 + n
		case op == 0x4e: // OP_PUSHDATA4
			if i+5 > len(script) {
				return nil, errors.New("scripttoolkit: truncated OP_PUSHDATA4")
			}
			n := int(script[i+1]) | int(script[i+2])<<8 | int(script[i+3])<<16 | int(script[i+4])<<24
			if i+5+n > len(script) {
				return nil, errors.New("scripttoolkit: truncated OP_PUSHDATA4 payload")
			}
			pushes = append(pushes, script[i+5:i+5+n])
			i += 5 + n
		default:
			// Any other opcode (OP_IF, OP_ELSE, OP_ENDIF, OP_DUP,
			// OP_HASH160, OP_EQUAL, OP_EQUALVERIFY, OP_CHECKSIG,
			// OP_CHECKMULTISIG, OP_CHECKSEQUENCEVERIFY, OP_DROP, the
			// OP_1..OP_16 small-integer range, ...) is a single byte
			// with no embedded data.
			i++
		}
	}
	return pushes, nil
}
