// https://github.com/arctan-os/kdrivers
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package nvme

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arctan-os/kdrivers/drivers/qpair"
)

func testController(t *testing.T, cfg Config) *Controller {
	t.Helper()
	c := New(cfg)
	require.NoError(t, c.Reset())
	return c
}

// S1 (Controller bring-up): CAP.MQES=255, CAP.DSTRD=0, CAP.CSS bit 6 set,
// CAP.MPSMIN=0. After reset, CC.EN=1, CSTS.RDY=1, CC.CSS=0b110,
// CC.IOSQES=6, CC.IOCQES=4, AQA encodes (63, 255), admin pair id = ADMIN.
func TestControllerBringUp(t *testing.T) {
	c := testController(t, Config{
		MQES: 255, DSTRD: 0, CSS: CSSIOCommandSetSelection, MPSMIN: 0,
	})

	require.True(t, c.props.ccEnable())
	require.True(t, c.props.cstsReady())
	require.Equal(t, uint32(0b110), c.props.ccCSS())
	require.Equal(t, uint32(6), c.props.ccIOSQES())
	require.Equal(t, uint32(4), c.props.ccIOCQES())

	// aqaSubLen/aqaCompLen report the decoded (+1) queue lengths; the raw
	// AQA register fields are therefore 63 and 255, per the scenario.
	require.Equal(t, 64, c.props.aqaSubLen())
	require.Equal(t, 256, c.props.aqaCompLen())

	pair, ok := c.engine.PairFor(qpair.AdminQueue)
	require.True(t, ok)
	require.Equal(t, qpair.AdminQueue, pair.ID())
}

// S2 (Identify controller): an Identify(0x01) on admin returns a buffer
// where bytes 78-79 = 0x0042, bytes 80-83 = 0x00010400, byte 111 = 1. Post:
// controller_id=0x0042, controller_version=0x00010400, controller_type=1.
func TestIdentifyController(t *testing.T) {
	c := testController(t, Config{
		MQES: 255, DSTRD: 0, CSS: CSSNVMCommandSet, MPSMIN: 0,
		ControllerID: 0x0042, Version: 0x00010400, ControllerType: 1, MDTS: 6,
	})

	buf := c.dev.identifyControllerData()
	require.Equal(t, uint16(0x0042), le16(buf[78:]))
	require.Equal(t, uint32(0x00010400), le32(buf[80:]))
	require.Equal(t, uint8(1), buf[111])

	require.NoError(t, c.IdentifyController())
	require.Equal(t, uint16(0x0042), c.controllerID)
	require.Equal(t, uint32(0x00010400), c.controllerVer)
	require.Equal(t, uint8(1), c.controllerType)
}

// S3 (Set features - number of queues): request 63/63; completion
// DW0 = 0x001F001F. Post: max_ioqpair_count = 0x20. The simulated device's
// own queue capacity (MaxIOQueues: 32) is narrower than what the host asks
// for, so the grant is clamped below the request.
func TestSetupIOQueuesGrantsDeviceCap(t *testing.T) {
	c := testController(t, Config{
		MQES: 255, DSTRD: 0, CSS: CSSNVMCommandSet, MPSMIN: 0,
		MaxIOQueues: 32,
	})

	require.NoError(t, c.SetupIOQueues())
	require.Equal(t, 0x20, c.maxIOQueueCount)
}

func TestSetFeaturesNumQueuesCompletionDW0(t *testing.T) {
	c := testController(t, Config{
		MQES: 255, DSTRD: 0, CSS: CSSNVMCommandSet, MPSMIN: 0,
		MaxIOQueues: 32,
	})

	cmd := &qpair.SubmissionEntry{
		Opcode: OpSetFeatures,
		CDW10:  FeatureNumQueues,
		CDW11:  63 | (63 << 16),
	}

	status, dw0 := c.dev.executeAdmin(c.adminRegion, cmd)
	require.Equal(t, uint16(0), status)
	require.Equal(t, uint32(0x001F001F), dw0)
}

// S4 (Namespace read): lba_size=512, offset=1024, size=1024. First command
// has CDW10=2, CDW12=1; caller buffer receives 1024 bytes copied from the
// scratch DMA page.
func TestNamespaceReadAt(t *testing.T) {
	c := testController(t, Config{
		MQES: 255, DSTRD: 0, CSS: CSSNVMCommandSet, MPSMIN: 0,
		ControllerID: 1, Version: 1, ControllerType: 1, MDTS: 6,
		Drives: []SimulatedDrive{{NSID: 1, LBASize: 512, SizeLBAs: 16}},
	})

	require.NoError(t, c.IdentifyController())
	require.NoError(t, c.SetupIOQueues())
	mask, err := c.SetCommandSet()
	require.NoError(t, err)

	namespaces, err := c.EnumerateNamespaces(mask)
	require.NoError(t, err)
	require.Len(t, namespaces, 1)
	ns := namespaces[0]
	require.Equal(t, uint32(512), ns.LBASize())

	backendNS := c.dev.namespaces[1]
	want := make([]byte, 1024)
	for i := range want {
		want[i] = byte(i + 1)
	}
	copy(backendNS.data[1024:2048], want)

	got := make([]byte, 1024)
	n, err := ns.ReadAt(1024, got)
	require.NoError(t, err)
	require.Equal(t, 1024, n)
	require.Equal(t, want, got)
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
