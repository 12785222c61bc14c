package ml

// toyFrame is a small weather table where it rains tomorrow exactly when
// Humidity3pm is above 70. Some cells are missing on purpose.
func toyFrame(n int) (*Frame, []int) {
	frame := NewFrame([]Column{
		{Name: "MinTemp", Kind: Numeric},
		{Name: "Humidity3pm", Kind: Numeric},
		{Name: "Pressure3pm", Kind: Numeric},
		{Name: "RainToday", Kind: Categorical},
		{Name: "WindDir3pm", Kind: Categorical},
	})
	dirs := []string{"N", "S", "E", "W"}
	labels := make([]int, 0, n)
	for i := 0; i < n; i++ {
		humidity := float64(20 + (i*37)%75)
		label := 0
		if humidity > 70 {
			label = 1
		}
		rainToday := "No"
		if i%3 == 0 {
			rainToday = "Yes"
		}
		row := []Value{
			Number(10 + float64(i%15)),
			Number(humidity),
			Number(1000 + float64(i%25)),
			Text(rainToday),
			Text(dirs[i%4]),
		}
		if i%10 == 0 {
			row[0] = Missing()
		}
		if i%7 == 0 {
			row[4] = Missing()
		}
		if err := frame.Append(row); err != nil {
			panic(err)
		}
		labels = append(labels, label)
	}
	return frame, labels
}

func toyParams() BoosterParams {
	p := DefaultBoosterParams()
	p.NEstimators = 20
	p.LearningRate = 0.2
	p.NumLeaves = 4
	p.MinChildSamples = 5
	return p
}

func toyPipeline() (*Pipeline, error) {
	X, y := toyFrame(150)
	p := NewPipeline(toyParams())
	if err := p.Fit(X, y); err != nil {
		return nil, err
	}
	return p, nil
}

func toyRow(schema FeatureSchema, humidity float64) Row {
	row, err := AssembleInput(schema, map[string]Value{
		"MinTemp":     Number(12),
		"Humidity3pm": Number(humidity),
		"Pressure3pm": Number(1015),
		"RainToday":   Text("No"),
	})
	if err != nil {
		panic(err)
	}
	return row
}
