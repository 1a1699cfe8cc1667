package bletemp_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fako1024/bletemp"
	"github.com/fako1024/bletemp/backend/sim"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testDwell = 20 * time.Millisecond

var (
	errTransport = errors.New("transport failure")

	celsiusPayload = []byte{0x00, 0xd0, 0x5d, 0x00, 0x00}
)

type result struct {
	samples []float32
	wakes   int
	err     error
}

func run(t *testing.T, s *bletemp.Sensor) result {
	t.Helper()

	var res result
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res.err = s.Run(ctx, func(v float32) error {
		res.samples = append(res.samples, v)
		return nil
	}, func() {
		res.wakes++
	})

	return res
}

func newSensor(t *testing.T, stack *sim.Stack, options ...func(*bletemp.Sensor)) *bletemp.Sensor {
	t.Helper()

	s, err := bletemp.New(append([]func(*bletemp.Sensor){
		bletemp.WithOpenFunc(stack.Open),
		bletemp.WithScanDwell(testDwell),
	}, options...)...)
	require.NoError(t, err)

	return s
}

func singleSensor(spec sim.PeripheralSpec) *sim.Stack {
	if spec.LocalName == "" {
		spec.LocalName = "Room Temperature"
	}
	return sim.New(sim.AdapterSpec{Peripherals: []sim.PeripheralSpec{spec}})
}

func TestRunStreamsDecodedSamples(t *testing.T) {
	stack := singleSensor(sim.PeripheralSpec{
		Address: "AA:BB:CC:DD:EE:01",
		Payloads: [][]byte{
			celsiusPayload,
			{0x00, 0xd0, 0x5d, 0x00, 0xff},
			{0x00, 0xd0, 0x5d, 0x00},
			{0x00, 0xd0, 0x5d, 0x00, 0x00, 0x00},
			{0x01, 0x50, 0xe2, 0x00, 0x00},
		},
	})
	s := newSensor(t, stack)

	res := run(t, s)
	require.NoError(t, res.err)
	require.Len(t, res.samples, 3)
	require.Equal(t, float32(24.016), res.samples[0])
	require.Equal(t, float32(24.016), res.samples[1])
	require.InDelta(t, 14.408889, res.samples[2], 1e-4)
	require.Equal(t, 3, res.wakes)

	require.Equal(t, bletemp.StateTerminated, s.ConnectionStatus().State)
	require.NoError(t, s.ConnectionStatus().Error)

	adapter := stack.Adapter(0)
	require.False(t, adapter.Scanning())
	require.True(t, adapter.Closed())
	require.Equal(t, 1, adapter.Peripheral("AA:BB:CC:DD:EE:01").Disconnects())
}

func TestRunMalformedFramesDoNotTerminate(t *testing.T) {
	stack := singleSensor(sim.PeripheralSpec{
		Payloads: [][]byte{
			{0x00, 0x01, 0x02, 0x03},
			{0x00, 0x01, 0x02, 0x03, 0x04, 0x05},
			celsiusPayload,
		},
	})

	res := run(t, newSensor(t, stack))
	require.NoError(t, res.err)
	require.Equal(t, []float32{24.016}, res.samples)
	require.Equal(t, 1, res.wakes)
}

func TestRunPreservesDeliveryOrder(t *testing.T) {
	var payloads [][]byte
	var want []float32
	for i := 1; i <= 50; i++ {
		payloads = append(payloads, sim.Encode(uint32(i*1000), false))
		want = append(want, float32(i))
	}

	res := run(t, newSensor(t, singleSensor(sim.PeripheralSpec{Payloads: payloads})))
	require.NoError(t, res.err)
	require.Equal(t, want, res.samples)
}

func TestSelectionRule(t *testing.T) {
	for _, cs := range []struct {
		names []string
		want  string
	}{
		{[]string{"Kitchen", "Outdoor Temperature", "Room Temperature"}, "Outdoor Temperature"},
		{[]string{"Foo", "TemperatureSensor", "Temperature Probe"}, "TemperatureSensor"},
		{[]string{"temperature probe", "TEMPERATURE", "Probe (Temperature)"}, "Probe (Temperature)"},
	} {
		t.Run(cs.want, func(t *testing.T) {
			var specs []sim.PeripheralSpec
			for _, name := range cs.names {
				specs = append(specs, sim.PeripheralSpec{LocalName: name, Address: name})
			}
			stack := sim.New(sim.AdapterSpec{Peripherals: specs})
			s := newSensor(t, stack)

			res := run(t, s)
			require.NoError(t, res.err)
			require.Equal(t, cs.want, s.Peripheral().LocalName)
			require.Equal(t, cs.want, s.Peripheral().Address)

			for _, name := range cs.names {
				disconnects := stack.Adapter(0).Peripheral(name).Disconnects()
				if name == cs.want {
					require.Equal(t, 1, disconnects, name)
				} else {
					require.Zero(t, disconnects, name)
				}
			}
		})
	}
}

func TestSelectionSkipsPeripheralsWithoutName(t *testing.T) {
	stack := sim.New(sim.AdapterSpec{
		Peripherals: []sim.PeripheralSpec{
			{Address: "no-props", LocalName: "Hidden Temperature", NoProperties: true},
			{Address: "no-name"},
			{Address: "match", LocalName: "Room Temperature"},
		},
	})
	s := newSensor(t, stack)

	require.NoError(t, run(t, s).err)
	require.Equal(t, "match", s.Peripheral().Address)
}

func TestSelectionCustomNameMatch(t *testing.T) {
	stack := sim.New(sim.AdapterSpec{
		Peripherals: []sim.PeripheralSpec{
			{Address: "a", LocalName: "Room Temperature"},
			{Address: "b", LocalName: "Probe 2"},
		},
	})
	s := newSensor(t, stack, bletemp.WithNameMatch("Probe"))

	require.NoError(t, run(t, s).err)
	require.Equal(t, "b", s.Peripheral().Address)
}

func TestSensorAppearsWhileScanning(t *testing.T) {
	stack := singleSensor(sim.PeripheralSpec{
		AppearAfter: 10 * time.Millisecond,
		Payloads:    [][]byte{celsiusPayload},
	})

	res := run(t, newSensor(t, stack, bletemp.WithScanDwell(100*time.Millisecond)))
	require.NoError(t, res.err)
	require.Equal(t, []float32{24.016}, res.samples)
}

func TestSensorAppearsAfterDwell(t *testing.T) {
	stack := singleSensor(sim.PeripheralSpec{AppearAfter: time.Hour})

	res := run(t, newSensor(t, stack))
	require.ErrorIs(t, res.err, bletemp.ErrNoSensor)
	require.Empty(t, res.samples)
	require.False(t, stack.Adapter(0).Scanning())
}

func TestAdapterSelection(t *testing.T) {
	stack := sim.New(
		sim.AdapterSpec{ID: "hci0", Peripherals: []sim.PeripheralSpec{{LocalName: "Room Temperature"}}},
		sim.AdapterSpec{ID: "hci1", Peripherals: []sim.PeripheralSpec{{LocalName: "Room Temperature"}}},
	)

	require.NoError(t, run(t, newSensor(t, stack)).err)
	require.Equal(t, 1, stack.Adapter(0).Scans())
	require.Zero(t, stack.Adapter(1).Scans())
	require.True(t, stack.Adapter(1).Closed())
}

func TestNoAdapter(t *testing.T) {
	res := run(t, newSensor(t, sim.New()))
	require.ErrorIs(t, res.err, bletemp.ErrNoAdapter)

	res = run(t, newSensor(t, sim.New(sim.AdapterSpec{}).WithAdaptersError(errTransport)))
	require.ErrorIs(t, res.err, bletemp.ErrNoAdapter)
	require.ErrorIs(t, res.err, errTransport)
}

func TestNoBleStack(t *testing.T) {
	s, err := bletemp.New(bletemp.WithOpenFunc(func(context.Context) (bletemp.Manager, error) {
		return nil, errTransport
	}))
	require.NoError(t, err)

	res := run(t, s)
	require.ErrorIs(t, res.err, bletemp.ErrNoBleStack)
	require.ErrorIs(t, res.err, errTransport)
	require.Equal(t, bletemp.StateTerminated, s.ConnectionStatus().State)
	require.ErrorIs(t, s.ConnectionStatus().Error, bletemp.ErrNoBleStack)
}

func TestStepFailures(t *testing.T) {
	for _, cs := range []struct {
		name    string
		adapter sim.AdapterSpec
		want    error
	}{
		{
			name:    "scan",
			adapter: sim.AdapterSpec{ScanErr: errTransport},
			want:    bletemp.ErrScanFailed,
		},
		{
			name:    "connect",
			adapter: sim.AdapterSpec{Peripherals: []sim.PeripheralSpec{{LocalName: "Temperature", ConnectErr: errTransport}}},
			want:    bletemp.ErrConnectFailed,
		},
		{
			name:    "discover",
			adapter: sim.AdapterSpec{Peripherals: []sim.PeripheralSpec{{LocalName: "Temperature", DiscoverErr: errTransport}}},
			want:    bletemp.ErrDiscoverFailed,
		},
		{
			name:    "subscribe",
			adapter: sim.AdapterSpec{Peripherals: []sim.PeripheralSpec{{LocalName: "Temperature", SubscribeErr: errTransport}}},
			want:    bletemp.ErrSubscribeFailed,
		},
	} {
		t.Run(cs.name, func(t *testing.T) {
			stack := sim.New(cs.adapter)
			res := run(t, newSensor(t, stack))

			require.ErrorIs(t, res.err, cs.want)
			require.ErrorIs(t, res.err, errTransport)
			require.Empty(t, res.samples)
			require.True(t, stack.Adapter(0).Closed())
		})
	}
}

func TestNoCharacteristic(t *testing.T) {
	stack := singleSensor(sim.PeripheralSpec{
		Address: "probe",
		Characteristics: []uuid.UUID{
			bletemp.UUID16(0x2a6e),
			bletemp.UUID16(0x2a19),
		},
		Payloads: [][]byte{celsiusPayload},
	})

	res := run(t, newSensor(t, stack))
	require.ErrorIs(t, res.err, bletemp.ErrNoCharacteristic)
	require.Empty(t, res.samples)
	require.False(t, stack.Adapter(0).Peripheral("probe").Subscribed())
	require.False(t, stack.Adapter(0).Peripheral("probe").Connected())
}

func TestConsumerGone(t *testing.T) {
	stack := singleSensor(sim.PeripheralSpec{Payloads: [][]byte{celsiusPayload, celsiusPayload}})
	s := newSensor(t, stack)

	var emitted, wakes int
	err := s.Run(context.Background(), func(float32) error {
		emitted++
		return errTransport
	}, func() {
		wakes++
	})

	require.ErrorIs(t, err, bletemp.ErrUIGone)
	require.Equal(t, 1, emitted)
	require.Zero(t, wakes)
}

func TestCancelWhileStreaming(t *testing.T) {
	stack := singleSensor(sim.PeripheralSpec{
		Interval:  time.Millisecond,
		Generator: sim.SineWave(20, 1, 10, false),
	})
	s := newSensor(t, stack)

	ctx, cancel := context.WithCancel(context.Background())
	var n int
	err := s.Run(ctx, func(float32) error {
		if n++; n == 5 {
			cancel()
		}
		return nil
	}, nil)

	require.ErrorIs(t, err, context.Canceled)
	require.GreaterOrEqual(t, n, 5)
}

func TestStateTransitions(t *testing.T) {
	stack := singleSensor(sim.PeripheralSpec{Payloads: [][]byte{celsiusPayload}})
	s := newSensor(t, stack)

	ch := make(chan bletemp.ConnectionStatus, 32)
	s.SetStateChangeChannel(ch)

	var handled []bletemp.State
	s.SetStateChangeHandler(func(status bletemp.ConnectionStatus) {
		handled = append(handled, status.State)
	})

	require.NoError(t, run(t, s).err)
	close(ch)

	var states []bletemp.State
	for status := range ch {
		require.NoError(t, status.Error)
		states = append(states, status.State)
	}

	want := []bletemp.State{
		bletemp.StateInit,
		bletemp.StateAdapterReady,
		bletemp.StateScanning,
		bletemp.StateSelected,
		bletemp.StateConnected,
		bletemp.StateDiscovered,
		bletemp.StateSubscribed,
		bletemp.StateStreaming,
		bletemp.StateTerminated,
	}
	require.Equal(t, want, states)
	require.Equal(t, want, handled)
	require.Equal(t, "AdapterReady", bletemp.StateAdapterReady.String())
}

func TestRunOnlyOnce(t *testing.T) {
	s := newSensor(t, singleSensor(sim.PeripheralSpec{}))

	require.NoError(t, run(t, s).err)
	require.ErrorIs(t, run(t, s).err, bletemp.ErrAlreadyStarted)
}

func TestNewValidation(t *testing.T) {
	_, err := bletemp.New()
	require.Error(t, err)

	stack := sim.New()
	_, err = bletemp.New(bletemp.WithManager(stack), bletemp.WithNameMatch(""))
	require.Error(t, err)

	_, err = bletemp.New(bletemp.WithManager(stack), bletemp.WithScanDwell(-time.Second))
	require.Error(t, err)
}
