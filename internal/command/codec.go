package command

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/talgya/shadow-scale/internal/simstate"
)

// Wire tags for the §6.1 tagged union. Values are frozen: clients encode
// against them directly.
const (
	tagTurn uint8 = iota
	tagResetMap
	tagHeat
	tagOrders
	tagRollback
	tagAxisBias
	tagSupportInfluencer
	tagSuppressInfluencer
	tagSupportInfluencerChannel
	tagSpawnInfluencer
	tagInjectCorruption
	tagUpdateEspionageGenerators
	tagQueueEspionageMission
	tagUpdateEspionageQueueDefaults
	tagReloadConfig
)

// Encode serializes cmd into an envelope payload (the bytes inside the
// length-prefixed frame). The inverse of Decode.
func Encode(cmd Command) []byte {
	var b bytes.Buffer
	switch c := cmd.(type) {
	case Turn:
		b.WriteByte(tagTurn)
		writeU32(&b, c.Steps)
	case ResetMap:
		b.WriteByte(tagResetMap)
		writeU32(&b, c.Width)
		writeU32(&b, c.Height)
	case Heat:
		b.WriteByte(tagHeat)
		writeU64(&b, c.Entity)
		writeU64(&b, uint64(c.DeltaRaw))
	case Orders:
		b.WriteByte(tagOrders)
		writeU32(&b, c.FactionID)
		b.WriteByte(uint8(c.Directive))
	case Rollback:
		b.WriteByte(tagRollback)
		writeU64(&b, c.Tick)
	case AxisBias:
		b.WriteByte(tagAxisBias)
		writeU32(&b, c.Axis)
		writeF32(&b, c.Value)
	case SupportInfluencer:
		b.WriteByte(tagSupportInfluencer)
		writeU32(&b, c.ID)
		writeF32(&b, c.Magnitude)
	case SuppressInfluencer:
		b.WriteByte(tagSuppressInfluencer)
		writeU32(&b, c.ID)
		writeF32(&b, c.Magnitude)
	case SupportInfluencerChannel:
		b.WriteByte(tagSupportInfluencerChannel)
		writeU32(&b, c.ID)
		b.WriteByte(uint8(c.Channel))
		writeF32(&b, c.Magnitude)
	case SpawnInfluencer:
		b.WriteByte(tagSpawnInfluencer)
		if c.Scope != nil {
			b.WriteByte(1)
			b.WriteByte(uint8(*c.Scope))
		} else {
			b.WriteByte(0)
		}
		if c.Generation != nil {
			b.WriteByte(1)
			writeU32(&b, *c.Generation)
		} else {
			b.WriteByte(0)
		}
	case InjectCorruption:
		b.WriteByte(tagInjectCorruption)
		b.WriteByte(uint8(c.Subsystem))
		writeF32(&b, c.Intensity)
		writeU32(&b, c.ExposureTimer)
	case UpdateEspionageGenerators:
		b.WriteByte(tagUpdateEspionageGenerators)
		writeU32(&b, uint32(len(c.Updates)))
		for _, u := range c.Updates {
			writeString(&b, u.TemplateID)
			if u.Enabled != nil {
				b.WriteByte(1)
				if *u.Enabled {
					b.WriteByte(1)
				} else {
					b.WriteByte(0)
				}
			} else {
				b.WriteByte(0)
			}
			if u.PerFaction != nil {
				b.WriteByte(1)
				writeU32(&b, *u.PerFaction)
			} else {
				b.WriteByte(0)
			}
		}
	case QueueEspionageMission:
		b.WriteByte(tagQueueEspionageMission)
		writeString(&b, c.MissionID)
		writeU32(&b, c.OwnerFaction)
		writeU32(&b, c.TargetOwnerFaction)
		writeString(&b, c.DiscoveryID)
		writeString(&b, c.AgentHandle)
		if c.TargetTier != nil {
			b.WriteByte(1)
			b.WriteByte(*c.TargetTier)
		} else {
			b.WriteByte(0)
		}
		if c.ScheduledTick != nil {
			b.WriteByte(1)
			writeU64(&b, *c.ScheduledTick)
		} else {
			b.WriteByte(0)
		}
	case UpdateEspionageQueueDefaults:
		b.WriteByte(tagUpdateEspionageQueueDefaults)
		if c.ScheduledTickOffset != nil {
			b.WriteByte(1)
			writeU64(&b, *c.ScheduledTickOffset)
		} else {
			b.WriteByte(0)
		}
		if c.TargetTier != nil {
			b.WriteByte(1)
			b.WriteByte(*c.TargetTier)
		} else {
			b.WriteByte(0)
		}
	case ReloadConfig:
		b.WriteByte(tagReloadConfig)
		b.WriteByte(uint8(c.Kind))
		if c.Path != "" {
			b.WriteByte(1)
			writeString(&b, c.Path)
		} else {
			b.WriteByte(0)
		}
	}
	return b.Bytes()
}

// Decode parses an envelope payload back into a typed Command. An
// undecodable payload returns an error; the ingress logs it and skips the
// frame without closing the connection (§7).
func Decode(payload []byte) (Command, error) {
	r := &reader{buf: payload}
	tag, err := r.u8()
	if err != nil {
		return nil, fmt.Errorf("command: empty payload")
	}
	switch tag {
	case tagTurn:
		steps, err := r.u32()
		if err != nil {
			return nil, err
		}
		return Turn{Steps: steps}, nil
	case tagResetMap:
		w, err := r.u32()
		if err != nil {
			return nil, err
		}
		h, err := r.u32()
		if err != nil {
			return nil, err
		}
		return ResetMap{Width: w, Height: h}, nil
	case tagHeat:
		entity, err := r.u64()
		if err != nil {
			return nil, err
		}
		delta, err := r.u64()
		if err != nil {
			return nil, err
		}
		return Heat{Entity: entity, DeltaRaw: int64(delta)}, nil
	case tagOrders:
		faction, err := r.u32()
		if err != nil {
			return nil, err
		}
		directive, err := r.u8()
		if err != nil {
			return nil, err
		}
		if OrdersDirective(directive) != DirectiveReady {
			return nil, fmt.Errorf("command: unknown orders directive %d", directive)
		}
		return Orders{FactionID: faction, Directive: OrdersDirective(directive)}, nil
	case tagRollback:
		tick, err := r.u64()
		if err != nil {
			return nil, err
		}
		return Rollback{Tick: tick}, nil
	case tagAxisBias:
		axis, err := r.u32()
		if err != nil {
			return nil, err
		}
		value, err := r.f32()
		if err != nil {
			return nil, err
		}
		if axis >= 4 {
			return nil, fmt.Errorf("command: axis %d out of range", axis)
		}
		return AxisBias{Axis: axis, Value: value}, nil
	case tagSupportInfluencer:
		id, err := r.u32()
		if err != nil {
			return nil, err
		}
		mag, err := r.f32()
		if err != nil {
			return nil, err
		}
		return SupportInfluencer{ID: id, Magnitude: mag}, nil
	case tagSuppressInfluencer:
		id, err := r.u32()
		if err != nil {
			return nil, err
		}
		mag, err := r.f32()
		if err != nil {
			return nil, err
		}
		return SuppressInfluencer{ID: id, Magnitude: mag}, nil
	case tagSupportInfluencerChannel:
		id, err := r.u32()
		if err != nil {
			return nil, err
		}
		channel, err := r.u8()
		if err != nil {
			return nil, err
		}
		mag, err := r.f32()
		if err != nil {
			return nil, err
		}
		if channel >= simstate.NumInfluencerChannels {
			return nil, fmt.Errorf("command: unknown influencer channel %d", channel)
		}
		return SupportInfluencerChannel{ID: id, Channel: simstate.InfluencerChannel(channel), Magnitude: mag}, nil
	case tagSpawnInfluencer:
		var cmd SpawnInfluencer
		hasScope, err := r.u8()
		if err != nil {
			return nil, err
		}
		if hasScope == 1 {
			scope, err := r.u8()
			if err != nil {
				return nil, err
			}
			if scope > uint8(simstate.ScopeGeneration) {
				return nil, fmt.Errorf("command: unknown influencer scope %d", scope)
			}
			s := simstate.InfluencerScope(scope)
			cmd.Scope = &s
		}
		hasGen, err := r.u8()
		if err != nil {
			return nil, err
		}
		if hasGen == 1 {
			gen, err := r.u32()
			if err != nil {
				return nil, err
			}
			cmd.Generation = &gen
		}
		return cmd, nil
	case tagInjectCorruption:
		sub, err := r.u8()
		if err != nil {
			return nil, err
		}
		intensity, err := r.f32()
		if err != nil {
			return nil, err
		}
		timer, err := r.u32()
		if err != nil {
			return nil, err
		}
		if sub > uint8(simstate.CorruptionGovernance) {
			return nil, fmt.Errorf("command: unknown corruption subsystem %d", sub)
		}
		return InjectCorruption{Subsystem: simstate.CorruptionSubsystem(sub), Intensity: intensity, ExposureTimer: timer}, nil
	case tagUpdateEspionageGenerators:
		n, err := r.u32()
		if err != nil {
			return nil, err
		}
		if n > 1024 {
			return nil, fmt.Errorf("command: generator update count %d too large", n)
		}
		cmd := UpdateEspionageGenerators{Updates: make([]GeneratorUpdate, 0, n)}
		for i := uint32(0); i < n; i++ {
			var u GeneratorUpdate
			u.TemplateID, err = r.str()
			if err != nil {
				return nil, err
			}
			hasEnabled, err := r.u8()
			if err != nil {
				return nil, err
			}
			if hasEnabled == 1 {
				v, err := r.u8()
				if err != nil {
					return nil, err
				}
				enabled := v == 1
				u.Enabled = &enabled
			}
			hasPer, err := r.u8()
			if err != nil {
				return nil, err
			}
			if hasPer == 1 {
				per, err := r.u32()
				if err != nil {
					return nil, err
				}
				u.PerFaction = &per
			}
			cmd.Updates = append(cmd.Updates, u)
		}
		return cmd, nil
	case tagQueueEspionageMission:
		var cmd QueueEspionageMission
		var err error
		if cmd.MissionID, err = r.str(); err != nil {
			return nil, err
		}
		if cmd.OwnerFaction, err = r.u32(); err != nil {
			return nil, err
		}
		if cmd.TargetOwnerFaction, err = r.u32(); err != nil {
			return nil, err
		}
		if cmd.DiscoveryID, err = r.str(); err != nil {
			return nil, err
		}
		if cmd.AgentHandle, err = r.str(); err != nil {
			return nil, err
		}
		hasTier, err := r.u8()
		if err != nil {
			return nil, err
		}
		if hasTier == 1 {
			tier, err := r.u8()
			if err != nil {
				return nil, err
			}
			cmd.TargetTier = &tier
		}
		hasTick, err := r.u8()
		if err != nil {
			return nil, err
		}
		if hasTick == 1 {
			tick, err := r.u64()
			if err != nil {
				return nil, err
			}
			cmd.ScheduledTick = &tick
		}
		return cmd, nil
	case tagUpdateEspionageQueueDefaults:
		var cmd UpdateEspionageQueueDefaults
		hasOffset, err := r.u8()
		if err != nil {
			return nil, err
		}
		if hasOffset == 1 {
			offset, err := r.u64()
			if err != nil {
				return nil, err
			}
			cmd.ScheduledTickOffset = &offset
		}
		hasTier, err := r.u8()
		if err != nil {
			return nil, err
		}
		if hasTier == 1 {
			tier, err := r.u8()
			if err != nil {
				return nil, err
			}
			cmd.TargetTier = &tier
		}
		return cmd, nil
	case tagReloadConfig:
		kind, err := r.u8()
		if err != nil {
			return nil, err
		}
		if kind > uint8(ReloadSnapshotOverlays) {
			return nil, fmt.Errorf("command: unknown reload kind %d", kind)
		}
		cmd := ReloadConfig{Kind: ReloadKind(kind)}
		hasPath, err := r.u8()
		if err != nil {
			return nil, err
		}
		if hasPath == 1 {
			if cmd.Path, err = r.str(); err != nil {
				return nil, err
			}
		}
		return cmd, nil
	default:
		return nil, fmt.Errorf("command: unknown tag %d", tag)
	}
}

func writeU32(b *bytes.Buffer, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	b.Write(buf[:])
}

func writeU64(b *bytes.Buffer, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	b.Write(buf[:])
}

func writeF32(b *bytes.Buffer, v float32) {
	writeU32(b, math.Float32bits(v))
}

func writeString(b *bytes.Buffer, s string) {
	writeU32(b, uint32(len(s)))
	b.WriteString(s)
}

// reader is a bounds-checked cursor over an envelope payload.
type reader struct {
	buf []byte
	off int
}

func (r *reader) u8() (uint8, error) {
	if r.off+1 > len(r.buf) {
		return 0, fmt.Errorf("command: truncated payload at offset %d", r.off)
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if r.off+4 > len(r.buf) {
		return 0, fmt.Errorf("command: truncated payload at offset %d", r.off)
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if r.off+8 > len(r.buf) {
		return 0, fmt.Errorf("command: truncated payload at offset %d", r.off)
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

func (r *reader) f32() (float32, error) {
	bits, err := r.u32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

func (r *reader) str() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if r.off+int(n) > len(r.buf) {
		return "", fmt.Errorf("command: truncated string at offset %d", r.off)
	}
	s := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}
