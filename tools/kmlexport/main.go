// Package main exports recorded aircraft flight tracks from PostgreSQL to
// KML format. KML (Keyhole Markup Language) files can be viewed in Google
// Earth, Google Maps, and other mapping applications.
package main

import (
	"context"
	"encoding/xml"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"acars_parser/internal/storage"
)

// KML structures for XML marshalling.
// These follow the KML 2.2 specification: https://developers.google.com/kml/documentation/kmlreference

// KML is the root element of a KML document.
type KML struct {
	XMLName   xml.Name `xml:"kml"`
	Namespace string   `xml:"xmlns,attr"`
	Document  Document `xml:"Document"`
}

// Document contains the document metadata and features.
type Document struct {
	Name        string      `xml:"name"`
	Description string      `xml:"description,omitempty"`
	Styles      []Style     `xml:"Style,omitempty"`
	Placemarks  []Placemark `xml:"Placemark"`
}

// Style defines the visual appearance of features.
type Style struct {
	ID        string     `xml:"id,attr"`
	LineStyle *LineStyle `xml:"LineStyle,omitempty"`
}

// LineStyle defines how a track's path is rendered.
type LineStyle struct {
	Color string  `xml:"color,omitempty"`
	Width float64 `xml:"width,omitempty"`
}

// Placemark represents a geographic feature with geometry and metadata.
type Placemark struct {
	Name         string        `xml:"name"`
	Description  string        `xml:"description,omitempty"`
	StyleURL     string        `xml:"styleUrl,omitempty"`
	LineString   *LineString   `xml:"LineString,omitempty"`
	ExtendedData *ExtendedData `xml:"ExtendedData,omitempty"`
}

// LineString represents a flight track as a sequence of points.
type LineString struct {
	AltitudeMode string `xml:"altitudeMode,omitempty"`
	Coordinates  string `xml:"coordinates"` // space-separated "lon,lat,alt" triples
}

// ExtendedData holds custom data associated with a placemark.
type ExtendedData struct {
	Data []Data `xml:"Data"`
}

// Data represents a single piece of extended data.
type Data struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

func main() {
	pgHost := flag.String("pg-host", "localhost", "PostgreSQL host")
	pgPort := flag.Int("pg-port", 5432, "PostgreSQL port")
	pgUser := flag.String("pg-user", "readsb", "PostgreSQL user")
	pgPassword := flag.String("pg-password", "", "PostgreSQL password")
	pgDB := flag.String("pg-db", "readsb_state", "PostgreSQL database")

	icaoHex := flag.String("icao", "", "export a single aircraft by ICAO hex (default: all tracked aircraft)")
	since := flag.Duration("since", 24*time.Hour, "only include track points within this duration of now")
	minPoints := flag.Int("min-points", 2, "minimum track points required to include an aircraft")
	output := flag.String("output", "", "Output KML file (default: stdout)")
	showStats := flag.Bool("stats", false, "Show statistics only, don't export")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	ctx := context.Background()

	pg, err := storage.OpenPostgres(ctx, storage.PostgresConfig{
		Host:     *pgHost,
		Port:     *pgPort,
		Database: *pgDB,
		User:     *pgUser,
		Password: *pgPassword,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening PostgreSQL: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	if *showStats {
		showTrackStats(ctx, pg, *minPoints)
		return
	}

	var hexes []string
	if *icaoHex != "" {
		hexes = []string{strings.ToLower(*icaoHex)}
	} else {
		hexes, err = pg.ListTrackedAircraft(ctx, *minPoints)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing tracked aircraft: %v\n", err)
			os.Exit(1)
		}
	}

	if len(hexes) == 0 {
		fmt.Fprintf(os.Stderr, "No aircraft found matching criteria\n")
		os.Exit(0)
	}

	cutoff := time.Now().Add(-*since)
	var placemarks []Placemark
	for _, hex := range hexes {
		points, err := pg.ListTrackPoints(ctx, hex, cutoff)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error querying track for %s: %v\n", hex, err)
			continue
		}
		if len(points) < *minPoints {
			continue
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "Exporting %s: %d points\n", hex, len(points))
		}
		placemarks = append(placemarks, trackPlacemark(hex, points))
	}

	kml := KML{
		Namespace: "http://www.opengis.net/kml/2.2",
		Document: Document{
			Name:        "Flight Tracks",
			Description: fmt.Sprintf("Recorded aircraft tracks. Generated %s.", time.Now().Format("2006-01-02 15:04:05")),
			Styles: []Style{
				{ID: "trackStyle", LineStyle: &LineStyle{Color: "ff0000ff", Width: 2}},
			},
			Placemarks: placemarks,
		},
	}

	xmlData, err := xml.MarshalIndent(kml, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating KML: %v\n", err)
		os.Exit(1)
	}
	xmlOutput := xml.Header + string(xmlData)

	if *output != "" {
		if err := os.WriteFile(*output, []byte(xmlOutput), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "Wrote %s\n", *output)
		}
	} else {
		fmt.Println(xmlOutput)
	}
}

// trackPlacemark renders one aircraft's recorded points as a single
// LineString placemark, altitude in meters per the KML convention.
func trackPlacemark(icaoHex string, points []storage.TrackPoint) Placemark {
	coords := make([]string, 0, len(points))
	for _, p := range points {
		altM := float64(p.AltBaroFt) * 0.3048
		coords = append(coords, fmt.Sprintf("%.6f,%.6f,%.1f", p.Longitude, p.Latitude, altM))
	}

	first, last := points[0], points[len(points)-1]
	name := icaoHex
	if last.Callsign != "" {
		name = fmt.Sprintf("%s (%s)", last.Callsign, icaoHex)
	}

	description := fmt.Sprintf(
		"Points: %d\nFirst seen: %s\nLast seen: %s",
		len(points),
		first.RecordedAt.Format("2006-01-02 15:04:05 UTC"),
		last.RecordedAt.Format("2006-01-02 15:04:05 UTC"),
	)

	return Placemark{
		Name:        name,
		Description: description,
		StyleURL:    "#trackStyle",
		LineString: &LineString{
			AltitudeMode: "absolute",
			Coordinates:  strings.Join(coords, " "),
		},
		ExtendedData: &ExtendedData{
			Data: []Data{
				{Name: "icao_hex", Value: icaoHex},
				{Name: "point_count", Value: fmt.Sprintf("%d", len(points))},
				{Name: "first_seen", Value: first.RecordedAt.Format(time.RFC3339)},
				{Name: "last_seen", Value: last.RecordedAt.Format(time.RFC3339)},
			},
		},
	}
}

// showTrackStats displays statistics about the recorded tracks.
func showTrackStats(ctx context.Context, pg *storage.PostgresDB, minPoints int) {
	pool := pg.Pool()

	var total int
	_ = pool.QueryRow(ctx, "SELECT COUNT(DISTINCT icao_hex) FROM track_points").Scan(&total)

	var totalPoints int64
	_ = pool.QueryRow(ctx, "SELECT COUNT(*) FROM track_points").Scan(&totalPoints)

	var oldest, newest *time.Time
	_ = pool.QueryRow(ctx, "SELECT MIN(recorded_at), MAX(recorded_at) FROM track_points").Scan(&oldest, &newest)

	hexes, err := pg.ListTrackedAircraft(ctx, minPoints)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing tracked aircraft: %v\n", err)
		return
	}

	fmt.Println("Track Statistics")
	fmt.Println("────────────────")
	fmt.Printf("Aircraft recorded:      %d\n", total)
	fmt.Printf("Aircraft above min:     %d (>= %d points)\n", len(hexes), minPoints)
	fmt.Printf("Total track points:     %d\n", totalPoints)
	if oldest != nil && newest != nil {
		fmt.Printf("Date range:             %s to %s\n", oldest.Format("2006-01-02"), newest.Format("2006-01-02"))
	}
}
