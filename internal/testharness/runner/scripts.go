package runner

import (
	"errors"
	"fmt"

	"github.com/koyi0000/mosquitto-cluster/internal/testharness/assertions"
	"github.com/koyi0000/mosquitto-cluster/internal/testharness/engine"
	"github.com/koyi0000/mosquitto-cluster/internal/testharness/loader"
	"github.com/koyi0000/mosquitto-cluster/pkg/mqttframe"
)

// BuildScripts turns the scenario phases into engine scripts with concrete
// frames. It fails with a ConfigError unless the last publish expected in
// the second phase is the last one of the first phase with DUP set.
func BuildScripts(sc *loader.Scenario, hostname string) ([]engine.Script, error) {
	level, err := sc.ProtocolLevel()
	if err != nil {
		return nil, engine.Config(err)
	}
	connect, err := mqttframe.Connect(mqttframe.ConnectParams{
		ClientID:      sc.ResolveClientID(hostname),
		KeepAlive:     sc.Bridge.KeepAlive,
		CleanSession:  sc.Bridge.CleanSession,
		ProtocolLevel: level,
	})
	if err != nil {
		return nil, engine.Config(fmt.Errorf("connect frame: %w", err))
	}

	scripts := make([]engine.Script, 0, len(sc.Phases))
	for _, p := range sc.Phases {
		script := engine.Script{Phase: engine.Phase(p.Name)}
		for i, st := range p.Steps {
			step, err := buildStep(sc, st, connect)
			if err != nil {
				return nil, engine.Config(fmt.Errorf("phase %s step %d: %w", p.Name, i, err))
			}
			script.Steps = append(script.Steps, step)
		}
		scripts = append(scripts, script)
	}

	if err := checkRedelivery(scripts); err != nil {
		return nil, engine.Config(err)
	}
	return scripts, nil
}

func buildStep(sc *loader.Scenario, st loader.StepSpec, connect mqttframe.Frame) (engine.Step, error) {
	timeout := st.Timeout.D()
	if timeout <= 0 {
		timeout = sc.Timeouts.Step.D()
	}
	label := st.Label

	switch {
	case st.Action != "":
		if label == "" {
			label = st.Action
		}
		return engine.Action(label, st.Action, sc.Timeouts.Publisher.D()), nil

	case st.Expect != "":
		if label == "" {
			label = st.Expect
		}
		var frame mqttframe.Frame
		var err error
		switch st.Expect {
		case loader.PacketConnect:
			frame = connect
		case loader.PacketSubscribe:
			frame, err = mqttframe.Subscribe(st.MID, sc.Bridge.Topic, sc.Bridge.QoS)
		case loader.PacketPublish:
			frame, err = mqttframe.Publish(publishParams(sc, st.Dup))
		default:
			err = fmt.Errorf("cannot expect %q", st.Expect)
		}
		if err != nil {
			return engine.Step{}, err
		}
		return engine.Expect(label, frame, timeout), nil

	case st.Send != "":
		if label == "" {
			label = st.Send
		}
		var frame mqttframe.Frame
		switch st.Send {
		case loader.PacketConnack:
			frame = mqttframe.Connack(st.ReturnCode, false)
		case loader.PacketSuback:
			frame = mqttframe.Suback(st.MID, sc.Bridge.QoS)
		case loader.PacketPuback:
			mid := st.MID
			if mid == 0 {
				mid = sc.Message.MID
			}
			frame = mqttframe.Puback(mid)
		default:
			return engine.Step{}, fmt.Errorf("cannot send %q", st.Send)
		}
		return engine.Send(label, frame), nil
	}
	return engine.Step{}, errors.New("empty step")
}

func publishParams(sc *loader.Scenario, dup bool) mqttframe.PublishParams {
	return mqttframe.PublishParams{
		Topic:     sc.Message.Topic,
		QoS:       sc.Message.QoS,
		MessageID: sc.Message.MID,
		Dup:       dup,
		Retain:    sc.Message.Retain,
		Payload:   []byte(sc.Message.Payload),
	}
}

// checkRedelivery enforces that the second phase expects the first phase's
// publish again, differing only in the duplicate flag.
func checkRedelivery(scripts []engine.Script) error {
	if len(scripts) != 2 {
		return fmt.Errorf("want 2 phases, got %d", len(scripts))
	}
	first := lastPublish(scripts[0])
	second := lastPublish(scripts[1])
	if first == nil || second == nil {
		return errors.New("both phases must expect a publish")
	}
	if r := assertions.Redelivery(first, second); !r.Passed {
		return errors.New(r.Message)
	}
	return nil
}

func lastPublish(s engine.Script) []byte {
	for i := len(s.Steps) - 1; i >= 0; i-- {
		st := s.Steps[i]
		if st.Kind == engine.StepExpect && mqttframe.Frame(st.Frame).Kind() == "PUBLISH" {
			return st.Frame
		}
	}
	return nil
}
