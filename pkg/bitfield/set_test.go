package bitfield

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSet() *RegisterSet {
	rs := NewRegisterSet(0x20, BigEndian)
	mcr := NewRegister("mcr", 4, 0,
		Field{Name: "vtes", BitOffset: 5, BitWidth: 1, Access: RW},
		Field{Name: "hven", BitOffset: 0, BitWidth: 1, Access: RW},
		Field{Name: "pad", BitOffset: 1, BitWidth: 4, Access: Const},
	)
	rs.AddScalar("mcr", 0x0, mcr)

	status := NewRegister("status", 1, 0,
		Field{Name: "flag", BitOffset: 0, BitWidth: 1, Access: W1C},
	)
	rs.AddScalar("status", 0x8, status)
	return rs
}

func TestResetValueReadback(t *testing.T) {
	rs := newTestSet()
	rs.Scalar("mcr").SetRaw(0)
	data, err := rs.Read(0x0, 4, false)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 0}, data)
}

func TestW1CClearsOnlyWrittenBits(t *testing.T) {
	rs := newTestSet()
	rs.Scalar("status").SetRaw(1)
	err := rs.Write(0x8, []byte{0x01}, false)
	require.NoError(t, err)
	require.EqualValues(t, 0, rs.Scalar("status").Raw())
}

func TestConstFieldIgnoresWrites(t *testing.T) {
	rs := newTestSet()
	err := rs.Write(0x0, []byte{0x00, 0x00, 0x00, 0xFF}, false)
	require.NoError(t, err)
	require.EqualValues(t, 0, rs.Scalar("mcr").GetField("pad"))
}

func TestMisalignedAccessFaults(t *testing.T) {
	rs := newTestSet()
	_, err := rs.Read(0x1, 4, false)
	require.Error(t, err)
	var bf *BusFault
	require.ErrorAs(t, err, &bf)
	require.Equal(t, "alignment", bf.Kind)
}

func TestOriginSuppressesBusFaultNotUnimplemented(t *testing.T) {
	rs := newTestSet()
	data, err := rs.Read(0x1, 4, true)
	require.NoError(t, err)
	require.Len(t, data, 4)

	rs.blocks = append(rs.blocks, &block{
		name: "todo", offset: 0x10, elemSize: 4,
		regs: []*Register{NewRegister("todo", 4, 0, Field{Name: "x", BitOffset: 0, BitWidth: 32, Access: Placeholder})},
	})
	_, err = rs.Read(0x10, 4, true)
	require.Error(t, err)
}

func TestFieldCallbackFiresOnWrite(t *testing.T) {
	rs := newTestSet()
	var fired bool
	rs.AddFieldCallback("mcr", "vtes", func(idx int) { fired = true })
	err := rs.Write(0x0, []byte{0x00, 0x00, 0x00, 0x20}, false)
	require.NoError(t, err)
	require.True(t, fired)
}
