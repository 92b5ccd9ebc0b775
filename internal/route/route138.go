package route

// Route 138, Colombo Fort to Homagama.
var (
	route138Polyline = [][2]float64{
		{79.8612, 6.9271}, // Fort
		{79.8650, 6.9250},
		{79.8700, 6.9200}, // Town Hall
		{79.8800, 6.9100},
		{79.8900, 6.9000}, // Nugegoda approach
		{79.9000, 6.8900},
		{79.9100, 6.8800}, // Maharagama
		{79.9200, 6.8700},
		{79.9300, 6.8600}, // Kottawa
		{79.9400, 6.8500}, // Homagama
	}

	route138Stops = []StopSpec{
		{ID: "stop_1", Name: "Fort Main", Location: [2]float64{79.8612, 6.9271}},
		{ID: "stop_2", Name: "Town Hall", Location: [2]float64{79.8700, 6.9200}},
		{ID: "stop_3", Name: "Nugegoda", Location: [2]float64{79.8900, 6.9000}},
		{ID: "stop_4", Name: "Maharagama", Location: [2]float64{79.9100, 6.8800}},
		{ID: "stop_5", Name: "Homagama", Location: [2]float64{79.9400, 6.8500}},
	}
)

// Route138 returns the built-in route used when no route file is configured.
func Route138() *Route {
	r, err := New("138", "Route 138", "Homagama (End)", route138Polyline, route138Stops)
	if err != nil {
		panic(err)
	}
	return r
}
