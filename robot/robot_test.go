package robot

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/kinetra/go-arm/logger"
	"github.com/kinetra/go-arm/rcp"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	var level logger.LogLevel
	switch logLevel {
	case "debug":
		level = logger.DebugLevel
	case "info":
		level = logger.InfoLevel
	case "warn":
		level = logger.WarnLevel
	case "error":
		level = logger.ErrorLevel
	default:
		level = logger.InfoLevel
	}

	logger.SetLevel(level)

	os.Exit(m.Run())
}

// dialTestRobot connects a Robot to the mock, completing the handshake on a
// script goroutine.
func dialTestRobot(t *testing.T, m *mockRobot, opts ...Option) *Robot {
	t.Helper()

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.accept()
		m.handshake(rcp.ConnectStatusSuccess, rcp.Version)
	}()

	cfg := newTestConfig(t, m, opts...)

	r, err := Connect(context.Background(), cfg)
	require.NoError(t, err)
	<-done

	t.Cleanup(func() { _ = r.Close() })

	return r
}

func newTestConfig(t *testing.T, m *mockRobot, opts ...Option) *Config {
	t.Helper()

	cfg, err := NewConfig("127.0.0.1", append([]Option{
		WithPort(m.port()),
		WithStateTimeout(200 * time.Millisecond),
		WithResponseTimeout(2 * time.Second),
		WithHandshakeTimeout(2 * time.Second),
	}, opts...)...)
	require.NoError(t, err)

	return cfg
}

func TestConnect_Handshake(t *testing.T) {
	require := require.New(t)

	m := newMockRobot(t)
	r := dialTestRobot(t, m)

	require.Equal(uint16(rcp.Version), r.ServerVersion())
	require.True(r.SessionState().IsIdle())

	_, ok := r.State()
	require.False(ok)

	require.NoError(r.Close())
	require.NoError(r.Close())

	_, err := r.ReadOnce()
	require.ErrorIs(err, ErrConnClosed)
}

func TestConnect_IncompatibleVersion(t *testing.T) {
	require := require.New(t)

	m := newMockRobot(t)

	go func() {
		m.accept()
		m.handshake(rcp.ConnectStatusIncompatibleLibraryVersion, rcp.Version+7)
	}()

	r, err := Connect(context.Background(), newTestConfig(t, m))
	require.Nil(r)
	require.ErrorIs(err, ErrIncompatibleVersion)
}

func TestConnect_Refused(t *testing.T) {
	require := require.New(t)

	m := newMockRobot(t)
	port := m.port()
	m.close()

	cfg, err := NewConfig("127.0.0.1",
		WithPort(port),
		WithConnectTimeout(500*time.Millisecond),
	)
	require.NoError(err)

	r, err := Connect(context.Background(), cfg)
	require.Nil(r)
	require.ErrorIs(err, ErrNetwork)
}

func TestConnect_HandshakeTimeout(t *testing.T) {
	require := require.New(t)

	m := newMockRobot(t)

	go m.accept()

	r, err := Connect(context.Background(), newTestConfig(t, m,
		WithHandshakeTimeout(100*time.Millisecond),
	))
	require.Nil(r)
	require.ErrorIs(err, ErrNetwork)
}

func TestConnect_NilConfig(t *testing.T) {
	r, err := Connect(context.Background(), nil)
	require.Nil(t, r)
	require.ErrorIs(t, err, ErrConfigNil)
}

func TestUpdate_StateTimeout(t *testing.T) {
	require := require.New(t)

	m := newMockRobot(t)
	r := dialTestRobot(t, m, WithStateTimeout(100*time.Millisecond))

	_, err := r.ReadOnce()
	require.ErrorIs(err, ErrNetwork)
	require.True(r.SessionState().IsIdle())
	require.Equal(uint64(1), r.Metrics().RecvTimeoutCount.Load())
}

func TestUpdate_OrderlyClose(t *testing.T) {
	require := require.New(t)

	m := newMockRobot(t)
	r := dialTestRobot(t, m)

	m.closeTCP()
	time.Sleep(50 * time.Millisecond)

	ok, err := r.Update()
	require.NoError(err)
	require.False(ok)
}

func TestUpdate_CloseAfterOneExchange(t *testing.T) {
	require := require.New(t)

	m := newMockRobot(t)
	r := dialTestRobot(t, m)

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.sendState(idleState())
		m.recvCommand()
		m.closeTCP()
	}()

	ok, err := r.Update()
	require.NoError(err)
	require.True(ok)
	<-done

	time.Sleep(50 * time.Millisecond)

	ok, err = r.Update()
	require.NoError(err)
	require.False(ok)
}

func TestPoll_ObservesBufferedResponseAndClose(t *testing.T) {
	require := require.New(t)

	m := newMockRobot(t)
	r := dialTestRobot(t, m)

	// a complete response followed by the peer's close, both already in the
	// receive buffer before the first poll
	m.sendResponse(rcp.CommandStopMove, rcp.StopMoveResponse{Status: rcp.CommandStatusSuccess}.Encode())
	m.closeTCP()
	time.Sleep(50 * time.Millisecond)

	msg, ok, err := r.net.tcpPoll()
	require.NoError(err)
	require.True(ok)
	require.Equal(rcp.CommandStopMove, msg.Command)

	_, ok, err = r.net.tcpPoll()
	require.False(ok)
	require.ErrorIs(err, ErrConnClosed)
}

func TestRead_StreamsStates(t *testing.T) {
	require := require.New(t)

	const cycles = 5

	m := newMockRobot(t)
	r := dialTestRobot(t, m)

	var sentIDs []uint64
	var cmds []rcp.RobotCommand
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < cycles; i++ {
			state := m.sendState(idleState())
			sentIDs = append(sentIDs, state.MessageID)
			cmds = append(cmds, m.recvCommand())
		}
	}()

	count := 0
	err := r.Read(func(state rcp.RobotState) bool {
		count++
		return count < cycles
	})
	require.NoError(err)
	<-done

	require.Equal(cycles, count)
	require.Len(cmds, cycles)
	for i, cmd := range cmds {
		require.Equal(sentIDs[i], cmd.MessageID)
	}

	require.Equal(uint64(cycles), r.Metrics().StateRecvCount.Load())
	require.Equal(uint64(cycles), r.Metrics().CommandSendCount.Load())
	require.True(r.SessionState().IsIdle())
}

func TestReadOnce_ReturnsState(t *testing.T) {
	require := require.New(t)

	m := newMockRobot(t)
	r := dialTestRobot(t, m)

	done := make(chan struct{})
	go func() {
		defer close(done)
		state := runningState(rcp.MotionGeneratorModeIdle)
		state.Q = [7]float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7}
		m.sendState(state)
		m.recvCommand()
	}()

	state, err := r.ReadOnce()
	require.NoError(err)
	<-done

	require.Equal([7]float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7}, state.Q)

	cached, ok := r.State()
	require.True(ok)
	require.Equal(state, cached)
}

func TestSession_ConflictingOperations(t *testing.T) {
	require := require.New(t)

	m := newMockRobot(t)
	r := dialTestRobot(t, m, WithStateTimeout(2*time.Second))

	started := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = r.Read(func(state rcp.RobotState) bool {
			close(started)
			<-release
			return false
		})
	}()

	scriptDone := make(chan struct{})
	go func() {
		defer close(scriptDone)
		m.sendState(idleState())
		m.recvCommand()
	}()

	<-started
	require.True(r.SessionState().IsReading())

	_, err := r.ReadOnce()
	require.ErrorIs(err, ErrInvalidOperation)

	err = r.Read(func(rcp.RobotState) bool { return false })
	require.ErrorIs(err, ErrInvalidOperation)

	err = r.ControlJointPositions(func(state rcp.RobotState, elapsed time.Duration) JointPositions {
		return StopJointPositions
	})
	require.ErrorIs(err, ErrInvalidOperation)

	err = r.ControlTorques(func(state rcp.RobotState, elapsed time.Duration) Torques {
		return StopTorques
	})
	require.ErrorIs(err, ErrInvalidOperation)

	close(release)
	wg.Wait()
	<-scriptDone
	require.True(r.SessionState().IsIdle())
}

func TestControlJointPositions_FullFlow(t *testing.T) {
	require := require.New(t)

	const motionCycles = 3

	m := newMockRobot(t)
	r := dialTestRobot(t, m)

	var (
		moveReq     rcp.MoveRequest
		cmds        []rcp.RobotCommand
		stateIDs    []uint64
		stoppedID   uint64
		finishedCnt int
	)

	done := make(chan struct{})
	go func() {
		defer close(done)

		msg := m.expectRequest(rcp.CommandMove)
		var err error
		moveReq, err = rcp.DecodeMoveRequest(msg.Payload)
		require.NoError(err)
		m.sendResponse(rcp.CommandMove, rcp.MoveResponse{Status: rcp.MoveStatusMotionStarted}.Encode())

		// cyclic phase: the last command carries the finished flag
		for {
			state := m.sendState(runningState(rcp.MotionGeneratorModeJointPosition))
			stateIDs = append(stateIDs, state.MessageID)

			cmd := m.recvCommand()
			cmds = append(cmds, cmd)
			if cmd.Motion.MotionGenerationFinished {
				finishedCnt++
				break
			}
		}

		m.sendResponse(rcp.CommandMove, rcp.MoveResponse{Status: rcp.MoveStatusSuccess}.Encode())
		stopped := m.sendState(idleState())
		stoppedID = stopped.MessageID
	}()

	var elapsedSamples []time.Duration
	cycle := 0
	err := r.ControlJointPositions(func(state rcp.RobotState, elapsed time.Duration) JointPositions {
		elapsedSamples = append(elapsedSamples, elapsed)
		cycle++
		if cycle >= motionCycles {
			return StopJointPositions
		}

		return JointPositions{Q: [7]float64{float64(cycle), 0, 0, 0, 0, 0, 0}}
	})
	require.NoError(err)
	<-done

	require.Equal(rcp.ControllerModeJointImpedance, moveReq.ControllerMode)
	require.Equal(rcp.MotionGeneratorTypeJointPosition, moveReq.MotionGeneratorType)

	require.Len(cmds, motionCycles)
	require.Equal(1, finishedCnt)
	for i, cmd := range cmds {
		require.Equal(stateIDs[i], cmd.MessageID)
		require.Less(cmd.MessageID, stoppedID)
	}
	require.Equal([7]float64{1, 0, 0, 0, 0, 0, 0}, cmds[0].Motion.QC)

	require.GreaterOrEqual(len(elapsedSamples), 1)
	require.Equal(time.Duration(0), elapsedSamples[0])
	for _, d := range elapsedSamples[1:] {
		require.Greater(d, time.Duration(0))
	}

	require.True(r.SessionState().IsIdle())
	require.False(r.MotionGeneratorRunning())
}

func TestControl_MoveRejected(t *testing.T) {
	require := require.New(t)

	m := newMockRobot(t)
	r := dialTestRobot(t, m)

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.expectRequest(rcp.CommandMove)
		m.sendResponse(rcp.CommandMove, rcp.MoveResponse{Status: rcp.MoveStatusRejected}.Encode())
	}()

	err := r.ControlJointVelocities(func(state rcp.RobotState, elapsed time.Duration) JointVelocities {
		return StopJointVelocities
	})
	require.ErrorIs(err, ErrMotionGenerator)
	<-done

	require.True(r.SessionState().IsIdle())
	require.False(r.MotionGeneratorRunning())
}

func TestControl_AbortedDuringMotion(t *testing.T) {
	require := require.New(t)

	m := newMockRobot(t)
	r := dialTestRobot(t, m)

	done := make(chan struct{})
	go func() {
		defer close(done)

		m.expectRequest(rcp.CommandMove)
		m.sendResponse(rcp.CommandMove, rcp.MoveResponse{Status: rcp.MoveStatusMotionStarted}.Encode())

		m.sendState(runningState(rcp.MotionGeneratorModeCartesianPosition))
		m.recvCommand()

		// the robot ends the motion on its own
		m.sendResponse(rcp.CommandMove, rcp.MoveResponse{Status: rcp.MoveStatusAborted}.Encode())
		time.Sleep(50 * time.Millisecond)
		m.sendState(runningState(rcp.MotionGeneratorModeCartesianPosition))

		// the client answers with a stop-move before failing the session
		m.expectRequest(rcp.CommandStopMove)
	}()

	err := r.ControlCartesianPose(func(state rcp.RobotState, elapsed time.Duration) CartesianPose {
		return CartesianPose{OTEE: state.OTEE}
	})
	require.ErrorIs(err, ErrControl)
	<-done

	require.True(r.SessionState().IsIdle())
	require.False(r.MotionGeneratorRunning())
}

func TestControlTorques_ExternalController(t *testing.T) {
	require := require.New(t)

	m := newMockRobot(t)
	r := dialTestRobot(t, m)

	var moveReq rcp.MoveRequest
	var cmds []rcp.RobotCommand

	done := make(chan struct{})
	go func() {
		defer close(done)

		msg := m.expectRequest(rcp.CommandMove)
		var err error
		moveReq, err = rcp.DecodeMoveRequest(msg.Payload)
		require.NoError(err)
		m.sendResponse(rcp.CommandMove, rcp.MoveResponse{Status: rcp.MoveStatusMotionStarted}.Encode())

		for {
			m.sendState(runningState(rcp.MotionGeneratorModeJointVelocity))
			cmd := m.recvCommand()
			cmds = append(cmds, cmd)
			if cmd.Motion.MotionGenerationFinished {
				break
			}
		}

		m.sendResponse(rcp.CommandMove, rcp.MoveResponse{Status: rcp.MoveStatusSuccess}.Encode())
		m.sendState(idleState())
	}()

	cycle := 0
	err := r.ControlTorques(func(state rcp.RobotState, elapsed time.Duration) Torques {
		cycle++
		if cycle >= 2 {
			return StopTorques
		}

		return Torques{TauJ: [7]float64{0, 0, 0, 0, 0, 0, 1.5}}
	})
	require.NoError(err)
	<-done

	require.Equal(rcp.ControllerModeExternalController, moveReq.ControllerMode)
	require.Equal(rcp.MotionGeneratorTypeJointVelocity, moveReq.MotionGeneratorType)

	require.Len(cmds, 2)
	require.Equal([7]float64{0, 0, 0, 0, 0, 0, 1.5}, cmds[0].Control.TauJC)
	// the accompanying generator streams zero setpoints
	require.Equal([7]float64{}, cmds[0].Motion.DqC)
}

func TestStartStopMotionGenerator_Legacy(t *testing.T) {
	require := require.New(t)

	m := newMockRobot(t)
	r := dialTestRobot(t, m)

	done := make(chan struct{})
	go func() {
		defer close(done)

		msg := m.expectRequest(rcp.CommandStartMotionGenerator)
		req, err := rcp.DecodeStartMotionGeneratorRequest(msg.Payload)
		require.NoError(err)
		require.Equal(rcp.MotionGeneratorTypeJointVelocity, req.Type)
		m.sendResponse(rcp.CommandStartMotionGenerator,
			rcp.StartMotionGeneratorResponse{Status: rcp.CommandStatusSuccess}.Encode())

		// confirmation cycle
		m.sendState(runningState(rcp.MotionGeneratorModeJointVelocity))
		m.recvCommand()
	}()

	require.NoError(r.StartMotionGenerator(rcp.MotionGeneratorTypeJointVelocity))
	<-done
	require.True(r.MotionGeneratorRunning())

	// a second generator is rejected locally
	err := r.StartMotionGenerator(rcp.MotionGeneratorTypeJointPosition)
	require.ErrorIs(err, ErrMotionGenerator)

	require.NoError(r.SetMotionCommand(rcp.MotionGeneratorCommand{
		DqC: [7]float64{0.5, 0, 0, 0, 0, 0, 0},
	}))

	done2 := make(chan struct{})
	var windDown []rcp.RobotCommand
	var stoppedID uint64
	go func() {
		defer close(done2)

		m.expectRequest(rcp.CommandStopMotionGenerator)
		m.sendResponse(rcp.CommandStopMotionGenerator,
			rcp.StopMotionGeneratorResponse{Status: rcp.CommandStatusSuccess}.Encode())

		// one more running state, answered with a finished command, then idle
		m.sendState(runningState(rcp.MotionGeneratorModeJointVelocity))
		windDown = append(windDown, m.recvCommand())
		stoppedID = m.sendState(idleState()).MessageID
	}()

	require.NoError(r.StopMotionGenerator())

	for r.MotionGeneratorRunning() {
		ok, err := r.Update()
		require.NoError(err)
		require.True(ok)
	}
	<-done2

	require.Len(windDown, 1)
	require.True(windDown[0].Motion.MotionGenerationFinished)
	require.Equal([7]float64{0.5, 0, 0, 0, 0, 0, 0}, windDown[0].Motion.DqC)
	require.Less(windDown[0].MessageID, stoppedID)

	// no generator running anymore
	require.ErrorIs(r.StopMotionGenerator(), ErrInvalidOperation)
	require.ErrorIs(r.SetMotionCommand(rcp.MotionGeneratorCommand{}), ErrInvalidOperation)
}

func TestStartMotionGenerator_DeferredRejection(t *testing.T) {
	require := require.New(t)

	m := newMockRobot(t)
	r := dialTestRobot(t, m)

	done := make(chan struct{})
	go func() {
		defer close(done)

		m.expectRequest(rcp.CommandStartMotionGenerator)
		m.sendResponse(rcp.CommandStartMotionGenerator,
			rcp.StartMotionGeneratorResponse{Status: rcp.CommandStatusSuccess}.Encode())

		m.sendState(runningState(rcp.MotionGeneratorModeJointPosition))
		m.recvCommand()

		// the robot rejects the generator after the fact
		m.sendResponse(rcp.CommandStartMotionGenerator,
			rcp.StartMotionGeneratorResponse{Status: rcp.CommandStatusRejected}.Encode())
		time.Sleep(50 * time.Millisecond)
		m.sendState(runningState(rcp.MotionGeneratorModeJointPosition))
	}()

	require.NoError(r.StartMotionGenerator(rcp.MotionGeneratorTypeJointPosition))
	require.True(r.MotionGeneratorRunning())

	// the rejection surfaces on a later cycle
	var err error
	for i := 0; i < 10 && err == nil; i++ {
		_, err = r.Update()
	}
	require.ErrorIs(err, ErrMotionGenerator)
	<-done

	require.False(r.MotionGeneratorRunning())
}

func TestSetControllerMode(t *testing.T) {
	require := require.New(t)

	m := newMockRobot(t)
	r := dialTestRobot(t, m)

	t.Run("accepted", func(t *testing.T) {
		done := make(chan struct{})
		go func() {
			defer close(done)
			msg := m.expectRequest(rcp.CommandSetControllerMode)
			req, err := rcp.DecodeSetControllerModeRequest(msg.Payload)
			require.NoError(err)
			require.Equal(rcp.ControllerModeCartesianImpedance, req.Mode)
			m.sendResponse(rcp.CommandSetControllerMode,
				rcp.SetControllerModeResponse{Status: rcp.CommandStatusSuccess}.Encode())
		}()

		require.NoError(r.SetControllerMode(rcp.ControllerModeCartesianImpedance))
		<-done
	})

	t.Run("rejected", func(t *testing.T) {
		done := make(chan struct{})
		go func() {
			defer close(done)
			m.expectRequest(rcp.CommandSetControllerMode)
			m.sendResponse(rcp.CommandSetControllerMode,
				rcp.SetControllerModeResponse{Status: rcp.CommandStatusRejected}.Encode())
		}()

		err := r.SetControllerMode(rcp.ControllerModeJointImpedance)
		require.ErrorIs(err, ErrControl)
		<-done
	})
}

func TestControl_ReadStyle(t *testing.T) {
	require := require.New(t)

	m := newMockRobot(t)
	r := dialTestRobot(t, m)

	done := make(chan struct{})
	go func() {
		defer close(done)

		m.expectRequest(rcp.CommandSetControllerMode)
		m.sendResponse(rcp.CommandSetControllerMode,
			rcp.SetControllerModeResponse{Status: rcp.CommandStatusSuccess}.Encode())

		for i := 0; i < 3; i++ {
			m.sendState(idleState())
			m.recvCommand()
		}
	}()

	count := 0
	err := r.Control(rcp.ControllerModeJointImpedance, func(state rcp.RobotState) bool {
		count++
		return count < 3
	})
	require.NoError(err)
	<-done

	require.Equal(3, count)
	require.True(r.SessionState().IsIdle())
}

func TestTeardown_DiscardsBufferedResponses(t *testing.T) {
	require := require.New(t)

	m := newMockRobot(t)
	r := dialTestRobot(t, m)

	// responses buffered during a failing session are stale afterwards
	r.oob.Enqueue(rcp.Message{Command: rcp.CommandStopMove})
	r.pending.Store(rcp.CommandMove, r.moveResponseHandler)

	r.teardownMotion()

	require.True(r.oob.IsEmpty())
	_, ok := r.pending.Load(rcp.CommandMove)
	require.False(ok)
}

func TestClose_ReleasesOperations(t *testing.T) {
	require := require.New(t)

	m := newMockRobot(t)
	r := dialTestRobot(t, m)

	require.NoError(r.Close())

	_, err := r.Update()
	require.ErrorIs(err, ErrConnClosed)

	require.ErrorIs(r.Read(func(rcp.RobotState) bool { return false }), ErrConnClosed)
	require.ErrorIs(r.SetControllerMode(rcp.ControllerModeJointImpedance), ErrConnClosed)
	require.ErrorIs(r.ControlTorques(func(rcp.RobotState, time.Duration) Torques {
		return StopTorques
	}), ErrConnClosed)
}
