// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package nvme

// NVM command set opcodes used by this driver (admin and I/O).
const (
	OpWrite                   = 0x01
	OpRead                    = 0x02
	OpCreateIOCompletionQueue = 0x05
	OpIdentify                = 0x06
	OpSetFeatures             = 0x09

	// Admin opcode 0x01 is reused for Create I/O Submission Queue; the
	// queue parameter (admin vs. I/O) at dispatch time disambiguates it
	// from the I/O Write opcode of the same value.
	OpCreateIOSubmissionQueue = 0x01
)

// Set Features / Get Features feature identifiers.
const (
	FeatureNumQueues        = 0x07
	FeatureCommandSetSelect = 0x19
)

// Completion status codes (15-bit field, generic command status class).
const (
	StatusInvalidOpcode    = 0x0001
	StatusInvalidField     = 0x0002
	StatusInvalidNamespace = 0x000B
	StatusLBAOutOfRange    = 0x0080
)

// Admin command CNS (Controller or Namespace Structure) values.
const (
	CNSNamespace              = 0x00
	CNSController             = 0x01
	CNSActiveNamespaceIDList  = 0x07
	CNSIOCommandSetNamespace  = 0x05
	CNSIOCommandSetController = 0x06
	CNSEnabledCommandSetList  = 0x1C
)

// CAP.CSS bits, relative to the 8-bit CSS field (absolute bits 37:44).
const (
	CSSNVMCommandSet           = 1 << 0
	CSSIOCommandSetSelection   = 1 << 6
	CSSAdminCommandSetOnly     = 1 << 7
)
