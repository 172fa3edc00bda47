package servermgr

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"thermo-poller/internal/modbus"
	"thermo-poller/internal/utils"
)

// Manager runs the simulated slaves on a serial port and drifts their
// registers so the poller has changing temperatures to watch.
type Manager struct {
	Cfg    Config
	bus    *Bus
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewManager(cfg Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var slaves []*modbus.Slave
	for _, sc := range cfg.Slaves {
		s := modbus.NewSlave(sc.ID)
		if sc.Readable != nil {
			s.SetReadable(modbus.Range{Start: sc.Readable.Start, Count: sc.Readable.Count})
		}
		for _, r := range sc.Registers {
			if err := s.Set(r.Kind, r.Address, uint16(r.Value)); err != nil {
				return nil, fmt.Errorf("slave %d: %w", sc.ID, err)
			}
		}
		slaves = append(slaves, s)
	}
	seed := uint64(cfg.Seed)
	if cfg.Seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Manager{
		Cfg:    cfg,
		bus:    NewBus(logger.Named("bus"), slaves...),
		logger: logger,
		rng:    rand.New(rand.NewPCG(seed, seed>>1)),
	}, nil
}

// Bus exposes the frame handler, mainly for tests and RTU-over-pipe setups.
func (m *Manager) Bus() *Bus { return m.bus }

// Step applies one drift update to every drifting register.
func (m *Manager) Step() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sc := range m.Cfg.Slaves {
		s, ok := m.bus.Slave(sc.ID)
		if !ok {
			continue
		}
		for _, r := range sc.Registers {
			if r.Drift <= 0 {
				continue
			}
			regs, err := modbus.Window(s, r.Kind, r.Address, 1)
			if err != nil {
				continue
			}
			cur := int(int16(regs[0]))
			next := cur + m.rng.IntN(2*r.Drift+1) - r.Drift
			lo, hi := r.Value-10*r.Drift, r.Value+10*r.Drift
			next = max(lo, min(hi, next))
			_ = s.Set(r.Kind, r.Address, uint16(next))
		}
	}
}

// Serve runs the bus and the drift loop on rw until ctx ends.
func (m *Manager) Serve(ctx context.Context, rw io.ReadWriter) error {
	go m.drift(ctx)
	return m.bus.Serve(ctx, rw)
}

func (m *Manager) drift(ctx context.Context) {
	t := time.NewTicker(m.Cfg.UpdateInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Step()
		}
	}
}

// Run opens the configured serial port (spawning socat first when asked)
// and serves requests until ctx is canceled.
func (m *Manager) Run(ctx context.Context) error {
	var socatCmd *exec.Cmd
	if m.Cfg.SpawnSocat {
		if m.Cfg.SocatLink == "" || m.Cfg.SocatPeer == "" {
			return fmt.Errorf("spawn_socat requires socat_link and socat_peer")
		}
		socatCmd = utils.BuildSocatPairCmd(ctx, utils.SocatPair{Link: m.Cfg.SocatLink, Peer: m.Cfg.SocatPeer})
		socatCmd.Stdout = os.Stdout
		socatCmd.Stderr = os.Stderr
		if err := socatCmd.Start(); err != nil {
			return fmt.Errorf("start socat: %w", err)
		}
		m.logger.Info("spawned socat pair",
			zap.String("link", m.Cfg.SocatLink),
			zap.String("peer", m.Cfg.SocatPeer),
			zap.Int("pid", socatCmd.Process.Pid))
		// wait for the pty links to appear
		time.Sleep(400 * time.Millisecond)
		defer stopSocat(socatCmd)
	}

	sp := m.Cfg.SerialParams()
	rw, err := utils.OpenSerial(sp)
	if err != nil {
		return err
	}

	m.logger.Info("simulator listening",
		zap.String("port", sp.Address),
		zap.Int("baud", sp.BaudRate),
		zap.String("parity", sp.Parity),
		zap.Int("slaves", len(m.Cfg.Slaves)))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		rw.Close()
	}()
	err = m.Serve(ctx, rw)
	m.logger.Info("simulator stopped")
	return err
}

func stopSocat(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	done := make(chan struct{})
	go func() { _ = cmd.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		_ = cmd.Process.Kill()
	}
}
