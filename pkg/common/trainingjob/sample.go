package trainingjob

// Measured epoch times (seconds) with 1 to 8 GPUs.
var sampleEpochTimes = map[string][]float64{
	"alexnet":     {25.245, 16.03, 14.637, 9.074, 8.987, 7.541, 6.419, 5.63},
	"resnet50":    {33.595, 18.84, 16.389, 13.064, 11.136, 9.81, 8.786, 8.068},
	"resnext50":   {71.954, 40.441, 28.105, 21.81, 18.178, 15.688, 13.771, 12.428},
	"seresnet101": {89.27, 51.516, 34.69, 26.048, 21.045, 17.608, 14.956, 15.097},
	"googlenet":   {41.505, 24.089, 17.129, 13.582, 11.537, 10.135, 9.056, 8.801},
	"vgg16":       {15.391, 10.07, 8.72, 6.592, 5.347, 4.486, 3.817, 3.248},
	"tsn":         {31.725, 20.131, 14.546, 11.622, 10.042, 8.912, 8.005, 7.325},
	"tsm":         {85.36, 48.126, 33.661, 26.119, 22.054, 19.147, 16.82, 15.074},
	"slowfast":    {307.975, 162.67, 111.205, 84.415, 69.983, 59.671, 51.418, 45.227},
	"r2plus1d":    {104.832, 60.892, 42.641, 33.096, 27.945, 24.258, 21.304, 19.086},
	"i3d":         {228.03, 122.116, 83.978, 64.123, 53.426, 45.783, 39.666, 35.078},
}

var sampleEpochs = map[string]int{
	"alexnet":     90,
	"resnet50":    90,
	"resnext50":   100,
	"seresnet101": 100,
	"googlenet":   60,
	"vgg16":       74,
	"tsn":         50,
	"tsm":         50,
	"slowfast":    40,
	"r2plus1d":    40,
	"i3d":         40,
}

// SampleTable returns a table of measured image and action recognition
// workloads, defined for 1 to 8 GPUs.
func SampleTable() *Table {
	t := NewTable()
	for name, times := range sampleEpochTimes {
		for i, epochTime := range times {
			t.Set(name, i+1, Record{EpochNum: sampleEpochs[name], EpochTime: epochTime})
		}
	}
	return t
}
