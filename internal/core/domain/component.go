package domain

type Device struct {
	Id               string
	Name             string
	Version          string
	Model            string
	Manufacturer     string
	SerialNumber     string
	ConfigurationURL string
	ViaDevice        string
}

type GenericSensor struct {
	Device            Device
	Id                string
	SensorType        string
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string // measurement, duration, total_increasing (for acc energy)
	DeviceClass       string // voltage, current, power, energy
	EntityCategory    string // diagnostic, config, nil
	EnabledByDefault  *bool
	Icon              string
	Options           []string // enum sensors
	Availability      bool
}

type GenericSwitch struct {
	Device           Device
	Id               string
	Name             string
	UniqueId         string
	Icon             string
	DeviceClass      string
	EntityCategory   string
	EnabledByDefault *bool
	Availability     bool
}

type GenericInputNumber struct {
	Device            Device
	Id                string
	Name              string
	UniqueId          string
	Icon              string
	Max               *float64
	Min               *float64
	Step              *float64
	Mode              string
	UnitOfMeasurement string
	DeviceClass       string
	EnabledByDefault  *bool
	Availability      bool
}

type GenericSelect struct {
	Device           Device
	Id               string
	Name             string
	UniqueId         string
	Icon             string
	Options          []string
	EntityCategory   string
	EnabledByDefault *bool
	Availability     bool
}

// Discovery groups every component announced to Home Assistant.
type Discovery struct {
	Sensors      []GenericSensor
	Switches     []GenericSwitch
	InputNumbers []GenericInputNumber
	Selects      []GenericSelect
}

func (d *Discovery) Merge(other Discovery) {
	d.Sensors = append(d.Sensors, other.Sensors...)
	d.Switches = append(d.Switches, other.Switches...)
	d.InputNumbers = append(d.InputNumbers, other.InputNumbers...)
	d.Selects = append(d.Selects, other.Selects...)
}

func (d Discovery) Len() int {
	return len(d.Sensors) + len(d.Switches) + len(d.InputNumbers) + len(d.Selects)
}
