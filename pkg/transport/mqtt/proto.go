package mqtt

import (
	"fmt"
	"time"

	"github.com/kabili207/meshtastic-go/core/crypto"
	pb "github.com/kabili207/meshtastic-go/core/proto"
	"google.golang.org/protobuf/proto"

	"github.com/kabili207/mesh-discord-bridge/pkg/models"
)

// decodeServiceEnvelope unwraps an encrypted uplink: envelope, mesh
// packet, channel decryption, then the port-specific payload.
func decodeServiceEnvelope(raw, key []byte) (*models.Packet, error) {
	var env pb.ServiceEnvelope
	if err := proto.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parsing service envelope: %w", err)
	}
	mp := env.GetPacket()
	if mp == nil {
		return nil, fmt.Errorf("envelope without packet")
	}

	data, err := crypto.TryDecode(mp, key)
	if err != nil {
		return nil, fmt.Errorf("decrypting packet: %w", err)
	}

	pkt := &models.Packet{
		FromID: nodeNumToID(mp.From),
		ToID:   destinationID(mp.To),
		RxTime: time.Now().UTC(),
	}
	if mp.RxTime > 0 {
		pkt.RxTime = time.Unix(int64(mp.RxTime), 0).UTC()
	}
	if mp.HopStart > 0 && mp.HopStart >= mp.HopLimit {
		pkt.HopsAway = int(mp.HopStart - mp.HopLimit)
	}
	if mp.RxSnr != 0 {
		snr := float64(mp.RxSnr)
		pkt.SNR = &snr
	}
	if mp.RxRssi != 0 {
		rssi := float64(mp.RxRssi)
		pkt.RSSI = &rssi
	}

	if err := decodeProtoPayload(data, pkt); err != nil {
		return nil, err
	}
	return pkt, nil
}

func decodeProtoPayload(data *pb.Data, pkt *models.Packet) error {
	switch data.Portnum {
	case pb.PortNum_TEXT_MESSAGE_APP:
		pkt.Decoded.Portnum = models.PortTextMessage
		pkt.Decoded.Text = string(data.Payload)

	case pb.PortNum_TELEMETRY_APP:
		pkt.Decoded.Portnum = models.PortTelemetry
		var tel pb.Telemetry
		if err := proto.Unmarshal(data.Payload, &tel); err != nil {
			return fmt.Errorf("parsing telemetry payload: %w", err)
		}
		pkt.Decoded.Telemetry = telemetryFromProto(&tel)

	case pb.PortNum_POSITION_APP:
		pkt.Decoded.Portnum = models.PortPosition
		var pos pb.Position
		if err := proto.Unmarshal(data.Payload, &pos); err != nil {
			return fmt.Errorf("parsing position payload: %w", err)
		}
		pkt.Decoded.Position = &models.PositionFix{
			LatitudeI:  pos.GetLatitudeI(),
			LongitudeI: pos.GetLongitudeI(),
			Altitude:   pos.GetAltitude(),
		}

	case pb.PortNum_TRACEROUTE_APP:
		pkt.Decoded.Portnum = models.PortTraceroute
		var rd pb.RouteDiscovery
		if err := proto.Unmarshal(data.Payload, &rd); err != nil {
			return fmt.Errorf("parsing traceroute payload: %w", err)
		}
		pkt.Decoded.RouteDiscovery = &models.RouteDiscovery{
			Route:      rd.Route,
			RouteBack:  rd.RouteBack,
			SNRTowards: rd.SnrTowards,
			SNRBack:    rd.SnrBack,
		}

	case pb.PortNum_NODEINFO_APP:
		pkt.Decoded.Portnum = models.PortNodeInfo
		var user pb.User
		if err := proto.Unmarshal(data.Payload, &user); err != nil {
			return fmt.Errorf("parsing nodeinfo payload: %w", err)
		}
		pkt.Decoded.User = &models.UserInfo{
			ID:        user.Id,
			LongName:  user.LongName,
			ShortName: user.ShortName,
			HwModel:   user.HwModel.String(),
			IsRouter:  user.Role == pb.Config_DeviceConfig_ROUTER,
		}

	default:
		pkt.Decoded.Portnum = data.Portnum.String()
	}
	return nil
}

func telemetryFromProto(tel *pb.Telemetry) *models.Telemetry {
	out := &models.Telemetry{}
	if d := tel.GetDeviceMetrics(); d != nil {
		out.Device = &models.DeviceMetrics{
			BatteryLevel:       u32p(d.BatteryLevel),
			Voltage:            f32p(d.Voltage),
			ChannelUtilization: f32p(d.ChannelUtilization),
			AirUtilTx:          f32p(d.AirUtilTx),
			UptimeSeconds:      u32p(d.UptimeSeconds),
		}
	}
	if e := tel.GetEnvironmentMetrics(); e != nil {
		out.Environment = &models.EnvironmentMetrics{
			Temperature:        f32p(e.Temperature),
			RelativeHumidity:   f32p(e.RelativeHumidity),
			BarometricPressure: f32p(e.BarometricPressure),
			GasResistance:      f32p(e.GasResistance),
			IAQ:                u32p(e.Iaq),
		}
	}
	if a := tel.GetAirQualityMetrics(); a != nil {
		out.AirQuality = &models.AirQualityMetrics{
			PM10Environmental:  u32p(a.Pm10Environmental),
			PM25Environmental:  u32p(a.Pm25Environmental),
			PM100Environmental: u32p(a.Pm100Environmental),
		}
	}
	if p := tel.GetPowerMetrics(); p != nil {
		out.Power = &models.PowerMetrics{
			Ch1Voltage: f32p(p.Ch1Voltage),
			Ch2Voltage: f32p(p.Ch2Voltage),
			Ch3Voltage: f32p(p.Ch3Voltage),
			Ch1Current: f32p(p.Ch1Current),
			Ch2Current: f32p(p.Ch2Current),
			Ch3Current: f32p(p.Ch3Current),
		}
	}
	return out
}

func f32p(v *float32) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

func u32p(v *uint32) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}
