package transmission

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
	"github.com/alexisbeaulieu97/melodium/internal/value"
)

func u8(v uint8) value.Data {
	return value.Data{Type: descriptor.Prim(descriptor.PrimitiveU8), Prim: v}
}

func TestFIFOPerEdge(t *testing.T) {
	t.Parallel()

	out, ins := NewOutputHandle(descriptor.Prim(descriptor.PrimitiveU8), 1)
	in := ins[0]

	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, out.SendOneU8(1))
		require.NoError(t, out.SendOneU8(2))
		require.NoError(t, out.Close())
	}()

	var got []uint8
	for {
		v, err := in.RecvOneU8()
		if err == ErrClosed || err == ErrNoData {
			break
		}
		require.NoError(t, err)
		got = append(got, v)
	}
	<-done
	require.Equal(t, []uint8{1, 2}, got)
}

func TestFanOutFidelity(t *testing.T) {
	t.Parallel()

	out, ins := NewOutputHandle(descriptor.Prim(descriptor.PrimitiveU8), 3)

	results := make([][]uint8, 3)
	done := make(chan struct{}, 3)
	for i, in := range ins {
		go func(i int, in *InputHandle) {
			defer func() { done <- struct{}{} }()
			for {
				v, err := in.RecvOneU8()
				if err == ErrClosed || err == ErrNoData {
					return
				}
				results[i] = append(results[i], v)
			}
		}(i, in)
	}

	require.NoError(t, out.SendOneU8(10))
	require.NoError(t, out.SendOneU8(20))
	require.NoError(t, out.Close())

	for range ins {
		<-done
	}
	for _, got := range results {
		require.Equal(t, []uint8{10, 20}, got)
	}
}

func TestCloseCompleteness(t *testing.T) {
	t.Parallel()

	out, ins := NewOutputHandle(descriptor.Prim(descriptor.PrimitiveU8), 1)
	in := ins[0]

	require.NoError(t, out.SendOneU8(5))
	require.NoError(t, out.Close())

	v, err := in.RecvOneU8()
	require.NoError(t, err)
	require.Equal(t, uint8(5), v)

	_, err = in.RecvOneU8()
	require.Error(t, err)
}

func TestBatchBoundaryIrrelevance(t *testing.T) {
	t.Parallel()

	elemType := descriptor.Prim(descriptor.PrimitiveU8)

	outMany, insMany := NewOutputHandle(elemType, 1)
	batch := NewBatch(elemType)
	batch.Push(u8(1))
	batch.Push(u8(2))
	batch.Push(u8(3))
	require.NoError(t, outMany.SendMany(batch))
	require.NoError(t, outMany.Close())

	outOne, insOne := NewOutputHandle(elemType, 1)
	require.NoError(t, outOne.SendOneU8(1))
	require.NoError(t, outOne.SendOneU8(2))
	require.NoError(t, outOne.SendOneU8(3))
	require.NoError(t, outOne.Close())

	var gotMany, gotOne []uint8
	for {
		v, err := insMany[0].RecvOneU8()
		if err != nil {
			break
		}
		gotMany = append(gotMany, v)
	}
	for {
		v, err := insOne[0].RecvOneU8()
		if err != nil {
			break
		}
		gotOne = append(gotOne, v)
	}
	require.Equal(t, gotOne, gotMany)
}

func TestSendWithNoReceiverFails(t *testing.T) {
	t.Parallel()

	out, _ := NewOutputHandle(descriptor.Prim(descriptor.PrimitiveU8), 0)
	require.ErrorIs(t, out.SendOneU8(1), ErrNoReceiver)
}

func TestFlushAfterAllConsumersClosedReturnsEverythingClosed(t *testing.T) {
	t.Parallel()

	out, ins := NewOutputHandle(descriptor.Prim(descriptor.PrimitiveU8), 1)
	ins[0].Close()

	out.staging.Push(u8(1))
	require.ErrorIs(t, out.flush(), ErrEverythingClosed)
}

func TestBatchAppendMismatchedTagsPanics(t *testing.T) {
	t.Parallel()

	a := NewBatch(descriptor.Prim(descriptor.PrimitiveU8))
	b := NewBatch(descriptor.Prim(descriptor.PrimitiveString))
	require.Panics(t, func() { a.Append(b) })
}

func TestAdoptFansOutToBothConsumers(t *testing.T) {
	t.Parallel()

	elemType := descriptor.Prim(descriptor.PrimitiveU8)
	a, insA := NewOutputHandle(elemType, 1)
	b, insB := NewOutputHandle(elemType, 1)
	a.Adopt(b)

	results := make([][]uint8, 2)
	done := make(chan struct{}, 2)
	for i, in := range []*InputHandle{insA[0], insB[0]} {
		go func(i int, in *InputHandle) {
			defer func() { done <- struct{}{} }()
			for {
				v, err := in.RecvOneU8()
				if err != nil {
					return
				}
				results[i] = append(results[i], v)
			}
		}(i, in)
	}

	require.NoError(t, a.SendOneU8(1))
	require.NoError(t, a.SendOneU8(2))
	require.NoError(t, a.Close())

	<-done
	<-done
	require.Equal(t, []uint8{1, 2}, results[0])
	require.Equal(t, []uint8{1, 2}, results[1])
}

func TestAdoptAcrossElementTypesPanics(t *testing.T) {
	t.Parallel()

	a, _ := NewOutputHandle(descriptor.Prim(descriptor.PrimitiveU8), 1)
	b, _ := NewOutputHandle(descriptor.Prim(descriptor.PrimitiveString), 1)
	require.Panics(t, func() { a.Adopt(b) })
}
