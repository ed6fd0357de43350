// Command readsb-core ingests a framed Mode S feed (Beast binary, raw AVR
// ASCII, or SBS-1 CSV) from stdin or a TCP connection, decodes it, and
// feeds the results through the tracker, recording stats and dispatching
// change notifications to whatever fan-out sinks are configured.
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"acars_parser/internal/aircraft"
	"acars_parser/internal/config"
	"acars_parser/internal/demod"
	"acars_parser/internal/fanout"
	"acars_parser/internal/frame"
	"acars_parser/internal/modes"
	"acars_parser/internal/stats"
	"acars_parser/internal/storage"
	"acars_parser/internal/tracker"
)

func main() {
	configPath := flag.String("config", "", "optional config file (yaml/json/toml, read by viper)")
	netConnect := flag.String("net-connect", "", "host:port of a Beast/raw/SBS feed to dial; empty means read stdin")
	inputFormat := flag.String("format", "beast", "input framing: beast, raw, sbs, or iq2400 (raw 2.4Msps uint16 magnitude samples)")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
	}

	reg := prometheus.NewRegistry()
	st := stats.New(reg, cfg.MaxRangeNM)

	sinks := buildSinks(cfg, log)
	dispatcher := fanout.NewDispatcher(log.WithField("component", "fanout"), sinks...)
	defer dispatcher.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store := openStorage(ctx, cfg, log)
	defer store.close(log)

	trk := tracker.New(cfg.TrackerConfig(), tracker.Callbacks{
		OnNewAircraft: func(a *aircraft.Aircraft) {
			dispatcher.Publish(context.Background(), fanout.Event{
				Kind: "new", Time: time.Now(), ICAO: a.ICAO, Aircraft: fanout.Summarize(a),
			})
			store.upsertIdentity(ctx, a, log)
		},
		OnPositionChange: func(a *aircraft.Aircraft) {
			dispatcher.Publish(context.Background(), fanout.Event{
				Kind: "position", Time: time.Now(), ICAO: a.ICAO, Aircraft: fanout.Summarize(a),
			})
			store.insertTrackPoint(ctx, a, log)
		},
		OnIdentChange: func(a *aircraft.Aircraft) {
			dispatcher.Publish(context.Background(), fanout.Event{
				Kind: "ident", Time: time.Now(), ICAO: a.ICAO, Aircraft: fanout.Summarize(a),
			})
			store.upsertIdentity(ctx, a, log)
		},
	})

	if store.sqlite != nil {
		if rows, err := store.sqlite.LoadSnapshot(ctx); err != nil {
			log.WithError(err).Warn("loading aircraft snapshot")
		} else if len(rows) > 0 {
			seedRegistry(trk.Registry(), rows, time.Now().UnixMilli())
			log.WithField("count", len(rows)).Info("restored aircraft snapshot")
		}
	}

	go metricsServer(cfg.MetricsAddr, reg, log)
	go upkeepLoop(ctx, trk, st)
	go snapshotLoop(ctx, trk, store, log)

	var r io.Reader
	if *netConnect != "" {
		conn, err := net.Dial("tcp", *netConnect)
		if err != nil {
			log.WithError(err).Fatal("dialing feed")
		}
		defer conn.Close()
		r = conn
	} else {
		r = os.Stdin
	}

	if err := ingest(ctx, r, *inputFormat, cfg.NfixCRC, trk, st, dispatcher, store); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("ingest loop exited")
	}

	saveSnapshot(context.Background(), trk, store, log)
}

func ingest(ctx context.Context, r io.Reader, format string, nfixCRC int, trk *tracker.Tracker, st *stats.Stats, d *fanout.Dispatcher, store *storageHandles) error {
	switch format {
	case "beast", "raw":
		var next func() (*frame.Candidate, error)
		if format == "beast" {
			rd := frame.NewBeastReader(r)
			next = rd.Next
		} else {
			rd := frame.NewRawReader(r)
			next = rd.Next
		}
		for {
			if ctx.Err() != nil {
				return nil
			}
			c, err := next()
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
			st.RecordSamples(1, 0)
			mm, err := modes.Decode(c.Payload, time.Now(), c.Source, nfixCRC)
			if err != nil {
				st.RecordBadCRC()
				continue
			}
			mm.SampleTS = c.SampleTS
			mm.SignalLevel = c.Signal
			st.RecordAccepted(int(mm.Source), mm.CorrectedBits, mm.SignalLevel > 0.5)
			a := trk.UpdateFromMessage(mm)
			d.Publish(ctx, fanout.Event{Kind: "message", Time: mm.RecvTime, ICAO: mm.AddrIcao, Message: mm, Aircraft: fanout.Summarize(a)})
			store.insertMessage(ctx, mm)
		}
	case "iq2400":
		dm := demod.New()
		br := bufio.NewReaderSize(r, 1<<20)
		const blockSamples = 1 << 18 // ~0.1s at 2.4Msps
		raw := make([]byte, blockSamples*2)
		var sampleTS uint64
		for {
			if ctx.Err() != nil {
				return nil
			}
			n, err := io.ReadFull(br, raw)
			if n == 0 {
				if err == io.EOF || err == io.ErrUnexpectedEOF {
					return nil
				}
				return err
			}
			samples := make([]uint16, n/2)
			for i := range samples {
				samples[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
			}
			st.RecordSamples(int64(len(samples)), 0)
			preamblesBefore := dm.Stats.Preambles
			cands := dm.Demodulate(ctx, &demod.SampleBuffer{Data: samples, SampleTS: sampleTS})
			for i := int64(0); i < dm.Stats.Preambles-preamblesBefore; i++ {
				st.RecordPreamble()
			}
			sampleTS += uint64(len(samples))
			for _, c := range cands {
				mm, derr := modes.Decode(c.Payload, time.Now(), c.Source, nfixCRC)
				if derr != nil {
					st.RecordBadCRC()
					continue
				}
				mm.SampleTS = c.SampleTS
				mm.SignalLevel = c.Signal
				st.RecordAccepted(int(mm.Source), mm.CorrectedBits, mm.SignalLevel > 0.5)
				a := trk.UpdateFromMessage(mm)
				d.Publish(ctx, fanout.Event{Kind: "message", Time: mm.RecvTime, ICAO: mm.AddrIcao, Message: mm, Aircraft: fanout.Summarize(a)})
				store.insertMessage(ctx, mm)
			}
			if err == io.ErrUnexpectedEOF {
				return nil
			}
		}
	case "sbs":
		rd := frame.NewSBSReader(r)
		for {
			if ctx.Err() != nil {
				return nil
			}
			mm, err := rd.Next()
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
			mm.RecvTime = time.Now()
			a := trk.UpdateFromMessage(mm)
			d.Publish(ctx, fanout.Event{Kind: "message", Time: mm.RecvTime, ICAO: mm.AddrIcao, Message: mm, Aircraft: fanout.Summarize(a)})
			store.insertMessage(ctx, mm)
		}
	default:
		return fmt.Errorf("unknown input format %q", format)
	}
}

func upkeepLoop(ctx context.Context, trk *tracker.Tracker, st *stats.Stats) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	statsTicker := time.NewTicker(10 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			trk.Upkeep(now)
			st.SetAircraftCount(trk.Registry().Count())
		case <-statsTicker.C:
			st.Advance()
		}
	}
}

func metricsServer(addr string, reg *prometheus.Registry, log *logrus.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.WithField("addr", addr).Info("serving prometheus metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("metrics server stopped")
	}
}

func buildSinks(cfg config.Config, log *logrus.Logger) []fanout.Sink {
	var sinks []fanout.Sink
	if cfg.NATSURL != "" {
		s, err := fanout.NewNATSSink(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			log.WithError(err).Warn("NATS sink unavailable, skipping")
		} else {
			sinks = append(sinks, s)
		}
	}
	if cfg.AMQPURL != "" {
		s, err := fanout.NewAMQPSink(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.WithError(err).Warn("AMQP sink unavailable, skipping")
		} else {
			sinks = append(sinks, s)
		}
	}
	return sinks
}

// storageHandles holds whichever of the three storage tiers came up
// successfully. Every tier is optional: a database that fails to open or
// isn't configured is logged and left nil, and every write path below is a
// best-effort no-op against a nil handle, the same posture buildSinks takes
// toward an unreachable broker.
type storageHandles struct {
	sqlite *storage.SQLiteDB
	pg     *storage.PostgresDB
	ch     *storage.ClickHouseDB
}

func openStorage(ctx context.Context, cfg config.Config, log *logrus.Logger) *storageHandles {
	h := &storageHandles{}

	if cfg.SQLitePath != "" {
		db, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			log.WithError(err).Warn("sqlite snapshot store unavailable, skipping")
		} else if err := db.CreateSchema(ctx); err != nil {
			log.WithError(err).Warn("sqlite snapshot schema, skipping")
		} else {
			h.sqlite = db
		}
	}

	if cfg.PostgresEnabled {
		db, err := storage.OpenPostgres(ctx, storage.PostgresConfig{
			Host: cfg.PostgresHost, Port: cfg.PostgresPort,
			Database: cfg.PostgresDatabase, User: cfg.PostgresUser, Password: cfg.PostgresPassword,
		})
		if err != nil {
			log.WithError(err).Warn("postgres unavailable, skipping")
		} else if err := db.CreateSchema(ctx); err != nil {
			log.WithError(err).Warn("postgres schema, skipping")
			db.Close()
		} else {
			h.pg = db
		}
	}

	if cfg.ClickHouseEnabled {
		db, err := storage.OpenClickHouse(ctx, storage.ClickHouseConfig{
			Host: cfg.ClickHouseHost, Port: cfg.ClickHousePort,
			Database: cfg.ClickHouseDatabase, User: cfg.ClickHouseUser, Password: cfg.ClickHousePassword,
		})
		if err != nil {
			log.WithError(err).Warn("clickhouse unavailable, skipping")
		} else if err := db.CreateSchema(ctx); err != nil {
			log.WithError(err).Warn("clickhouse schema, skipping")
			db.Close()
		} else {
			h.ch = db
		}
	}

	return h
}

func (h *storageHandles) close(log *logrus.Logger) {
	if h.sqlite != nil {
		if err := h.sqlite.Close(); err != nil {
			log.WithError(err).Warn("closing sqlite store")
		}
	}
	if h.pg != nil {
		h.pg.Close()
	}
	if h.ch != nil {
		if err := h.ch.Close(); err != nil {
			log.WithError(err).Warn("closing clickhouse")
		}
	}
}

func (h *storageHandles) upsertIdentity(ctx context.Context, a *aircraft.Aircraft, log *logrus.Logger) {
	if h.pg == nil {
		return
	}
	now := time.Now()
	err := h.pg.UpsertAircraftIdentity(ctx, storage.Aircraft{
		ICAOHex:   icaoHex(a.ICAO),
		FirstSeen: now,
		LastSeen:  now,
		MsgCount:  1,
	})
	if err != nil {
		log.WithError(err).Debug("upsert aircraft identity")
	}
}

func (h *storageHandles) insertTrackPoint(ctx context.Context, a *aircraft.Aircraft, log *logrus.Logger) {
	if h.pg == nil {
		return
	}
	err := h.pg.InsertTrackPoint(ctx, storage.TrackPoint{
		ICAOHex:       icaoHex(a.ICAO),
		RecordedAt:    time.Now(),
		Latitude:      a.Lat,
		Longitude:     a.Lon,
		AltBaroFt:     a.BaroAlt,
		GroundSpeedKt: a.GroundSpeed,
		TrackDeg:      a.Track,
		OnGround:      a.PosSurface,
		Callsign:      a.Callsign,
		Squawk:        a.Squawk,
	})
	if err != nil {
		log.WithError(err).Debug("insert track point")
	}
}

func (h *storageHandles) insertMessage(ctx context.Context, mm *modes.Message) {
	if h.ch == nil {
		return
	}
	_ = h.ch.Insert(ctx, storage.InsertParams{
		RecvTime:      mm.RecvTime,
		ICAOHex:       icaoHex(mm.AddrIcao),
		DF:            uint8(mm.DF),
		METype:        uint8(mm.ME),
		Source:        mm.Source.String(),
		CorrectedBits: uint8(mm.CorrectedBits),
		RawHex:        hex.EncodeToString(mm.Raw),
		Decoded:       mm,
	})
}

func icaoHex(addr uint32) string {
	return fmt.Sprintf("%06x", addr)
}

// seedRegistry pre-populates the registry from a restart snapshot so the
// tracker does not need to wait out the full staleness window before
// re-learning every in-range aircraft's identity and last known position.
func seedRegistry(reg *aircraft.Registry, rows []storage.SnapshotRow, now int64) {
	for _, r := range rows {
		addr, err := strconv.ParseUint(r.ICAOHex, 16, 32)
		if err != nil {
			continue
		}
		a, _ := reg.GetOrCreate(uint32(addr), now)
		if a == nil {
			continue
		}
		a.Callsign = r.Callsign
		a.Squawk = r.Squawk
		if r.HasPos {
			a.Lat, a.Lon = r.Lat, r.Lon
		}
		a.Seen = r.LastSeen.UnixMilli()
	}
}

func snapshotLoop(ctx context.Context, trk *tracker.Tracker, store *storageHandles, log *logrus.Logger) {
	if store.sqlite == nil {
		return
	}
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			saveSnapshot(ctx, trk, store, log)
		}
	}
}

func saveSnapshot(ctx context.Context, trk *tracker.Tracker, store *storageHandles, log *logrus.Logger) {
	if store.sqlite == nil {
		return
	}
	var rows []storage.SnapshotRow
	trk.Registry().ForEach(func(a *aircraft.Aircraft) {
		rows = append(rows, storage.SnapshotRow{
			ICAOHex:  icaoHex(a.ICAO),
			Callsign: a.Callsign,
			Squawk:   a.Squawk,
			Lat:      a.Lat,
			Lon:      a.Lon,
			HasPos:   a.PositionValid.Updated != 0,
			LastSeen: time.UnixMilli(a.Seen),
		})
	})
	if err := store.sqlite.SaveSnapshot(ctx, rows); err != nil {
		log.WithError(err).Warn("saving aircraft snapshot")
	}
}
