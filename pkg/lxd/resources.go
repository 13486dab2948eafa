package lxd

import (
	"slices"
	"time"
)

// Device is a single device entry keyed by its option names.
type Device map[string]string

// Devices maps device names to their options.
type Devices map[string]Device

// Instance represents a container or virtual machine.
type Instance struct {
	Name            string            `json:"name"                       yaml:"name"                       validate:"required"`
	Type            string            `json:"type,omitempty"             yaml:"type,omitempty"             validate:"omitempty,oneof=container virtual-machine"`
	Description     string            `json:"description"                yaml:"description"`
	Architecture    string            `json:"architecture"               yaml:"architecture"`
	Config          map[string]string `json:"config"                     yaml:"config"`
	Devices         Devices           `json:"devices"                    yaml:"devices"`
	ExpandedConfig  map[string]string `json:"expanded_config,omitempty"  yaml:"expanded_config,omitempty"`
	ExpandedDevices Devices           `json:"expanded_devices,omitempty" yaml:"expanded_devices,omitempty"`
	Profiles        []string          `json:"profiles"                   yaml:"profiles"`
	Ephemeral       bool              `json:"ephemeral"                  yaml:"ephemeral"`
	Stateful        bool              `json:"stateful"                   yaml:"stateful"`
	Status          string            `json:"status"                     yaml:"status"                     validate:"required"`
	StatusCode      StatusCode        `json:"status_code"                yaml:"status_code"                validate:"required"`
	CreatedAt       time.Time         `json:"created_at"                 yaml:"created_at"`
	LastUsedAt      time.Time         `json:"last_used_at"               yaml:"last_used_at"`
	Location        string            `json:"location,omitempty"         yaml:"location,omitempty"`
	Project         string            `json:"project,omitempty"          yaml:"project,omitempty"`
}

// InstanceSource describes where a new instance comes from.
type InstanceSource struct {
	Type        string            `json:"type"                  yaml:"type"                  validate:"required,oneof=image copy migration none"`
	Alias       string            `json:"alias,omitempty"       yaml:"alias,omitempty"`
	Fingerprint string            `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"  yaml:"properties,omitempty"`
	Server      string            `json:"server,omitempty"      yaml:"server,omitempty"`
	Protocol    string            `json:"protocol,omitempty"    yaml:"protocol,omitempty"`
	Mode        string            `json:"mode,omitempty"        yaml:"mode,omitempty"`
	Source      string            `json:"source,omitempty"      yaml:"source,omitempty"`
}

// InstancesPost is the request body for creating an instance.
type InstancesPost struct {
	Name         string            `json:"name"                    yaml:"name"                    validate:"required"`
	Type         string            `json:"type,omitempty"          yaml:"type,omitempty"          validate:"omitempty,oneof=container virtual-machine"`
	Description  string            `json:"description,omitempty"   yaml:"description,omitempty"`
	Architecture string            `json:"architecture,omitempty"  yaml:"architecture,omitempty"`
	Source       InstanceSource    `json:"source"                  yaml:"source"`
	Config       map[string]string `json:"config,omitempty"        yaml:"config,omitempty"`
	Devices      Devices           `json:"devices,omitempty"       yaml:"devices,omitempty"`
	Profiles     []string          `json:"profiles,omitempty"      yaml:"profiles,omitempty"`
	Ephemeral    bool              `json:"ephemeral,omitempty"     yaml:"ephemeral,omitempty"`
	InstanceType string            `json:"instance_type,omitempty" yaml:"instance_type,omitempty"`
}

// InstancePut is the writable part of an instance.
type InstancePut struct {
	Description  string            `json:"description"            yaml:"description"`
	Architecture string            `json:"architecture,omitempty" yaml:"architecture,omitempty"`
	Config       map[string]string `json:"config"                 yaml:"config"`
	Devices      Devices           `json:"devices"                yaml:"devices"`
	Profiles     []string          `json:"profiles"               yaml:"profiles"`
	Ephemeral    bool              `json:"ephemeral"              yaml:"ephemeral"`
}

// Writable returns the subset of the instance accepted by Update.
func (i *Instance) Writable() InstancePut {
	return InstancePut{
		Description:  i.Description,
		Architecture: i.Architecture,
		Config:       i.Config,
		Devices:      i.Devices,
		Profiles:     i.Profiles,
		Ephemeral:    i.Ephemeral,
	}
}

// InstanceState is the runtime state of an instance.
type InstanceState struct {
	Status     string                          `json:"status"            yaml:"status"            validate:"required"`
	StatusCode StatusCode                      `json:"status_code"       yaml:"status_code"       validate:"required"`
	Pid        int64                           `json:"pid"               yaml:"pid"`
	Processes  int64                           `json:"processes"         yaml:"processes"`
	CPU        InstanceStateCPU                `json:"cpu"               yaml:"cpu"`
	Memory     InstanceStateMemory             `json:"memory"            yaml:"memory"`
	Network    map[string]InstanceStateNetwork `json:"network,omitempty" yaml:"network,omitempty"`
}

// InstanceStateCPU holds CPU accounting.
type InstanceStateCPU struct {
	Usage int64 `json:"usage" yaml:"usage"`
}

// InstanceStateMemory holds memory accounting.
type InstanceStateMemory struct {
	Usage         int64 `json:"usage"           yaml:"usage"`
	UsagePeak     int64 `json:"usage_peak"      yaml:"usage_peak"`
	SwapUsage     int64 `json:"swap_usage"      yaml:"swap_usage"`
	SwapUsagePeak int64 `json:"swap_usage_peak" yaml:"swap_usage_peak"`
}

// InstanceStateNetwork is one network interface of a running instance.
type InstanceStateNetwork struct {
	Addresses []InstanceStateNetworkAddress `json:"addresses" yaml:"addresses"`
	Hwaddr    string                        `json:"hwaddr"    yaml:"hwaddr"`
	HostName  string                        `json:"host_name" yaml:"host_name"`
	State     string                        `json:"state"     yaml:"state"`
	Type      string                        `json:"type"      yaml:"type"`
}

// InstanceStateNetworkAddress is a single address on an interface.
type InstanceStateNetworkAddress struct {
	Family  string `json:"family"  yaml:"family"`
	Address string `json:"address" yaml:"address"`
	Netmask string `json:"netmask" yaml:"netmask"`
	Scope   string `json:"scope"   yaml:"scope"`
}

// InstanceStatePut requests a state change.
type InstanceStatePut struct {
	Action   string `json:"action"   yaml:"action"   validate:"required,oneof=start stop restart freeze unfreeze"`
	Timeout  int    `json:"timeout"  yaml:"timeout"`
	Force    bool   `json:"force"    yaml:"force"`
	Stateful bool   `json:"stateful" yaml:"stateful"`
}

// ImageAlias names an image.
type ImageAlias struct {
	Name        string `json:"name"        yaml:"name"        validate:"required"`
	Description string `json:"description" yaml:"description"`
}

// Image is a stored image.
type Image struct {
	Fingerprint  string            `json:"fingerprint"          yaml:"fingerprint"          validate:"required"`
	Filename     string            `json:"filename"             yaml:"filename"`
	Size         int64             `json:"size"                 yaml:"size"`
	Architecture string            `json:"architecture"         yaml:"architecture"`
	Type         string            `json:"type,omitempty"       yaml:"type,omitempty"`
	Public       bool              `json:"public"               yaml:"public"`
	AutoUpdate   bool              `json:"auto_update"          yaml:"auto_update"`
	Cached       bool              `json:"cached"               yaml:"cached"`
	Properties   map[string]string `json:"properties"           yaml:"properties"`
	Aliases      []ImageAlias      `json:"aliases"              yaml:"aliases"              validate:"dive"`
	Profiles     []string          `json:"profiles,omitempty"   yaml:"profiles,omitempty"`
	CreatedAt    time.Time         `json:"created_at"           yaml:"created_at"`
	UploadedAt   time.Time         `json:"uploaded_at"          yaml:"uploaded_at"`
	ExpiresAt    time.Time         `json:"expires_at"           yaml:"expires_at"`
	LastUsedAt   time.Time         `json:"last_used_at"         yaml:"last_used_at"`
}

// ImagePut is the writable part of an image.
type ImagePut struct {
	AutoUpdate bool              `json:"auto_update"          yaml:"auto_update"`
	Public     bool              `json:"public"               yaml:"public"`
	Properties map[string]string `json:"properties"           yaml:"properties"`
	Profiles   []string          `json:"profiles,omitempty"   yaml:"profiles,omitempty"`
	ExpiresAt  time.Time         `json:"expires_at"           yaml:"expires_at"`
}

// StoragePool is a storage pool.
type StoragePool struct {
	Name        string            `json:"name"                yaml:"name"                validate:"required"`
	Driver      string            `json:"driver"              yaml:"driver"              validate:"required"`
	Description string            `json:"description"         yaml:"description"`
	Config      map[string]string `json:"config"              yaml:"config"`
	Status      string            `json:"status,omitempty"    yaml:"status,omitempty"`
	UsedBy      []string          `json:"used_by"             yaml:"used_by"`
	Locations   []string          `json:"locations,omitempty" yaml:"locations,omitempty"`
}

// StoragePoolsPost is the request body for creating a storage pool.
type StoragePoolsPost struct {
	Name        string            `json:"name"                  yaml:"name"                  validate:"required"`
	Driver      string            `json:"driver"                yaml:"driver"                validate:"required"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Config      map[string]string `json:"config,omitempty"      yaml:"config,omitempty"`
}

// StoragePoolPut is the writable part of a storage pool.
type StoragePoolPut struct {
	Description string            `json:"description" yaml:"description"`
	Config      map[string]string `json:"config"      yaml:"config"`
}

// Network is a host network.
type Network struct {
	Name        string            `json:"name"                yaml:"name"                validate:"required"`
	Type        string            `json:"type"                yaml:"type"`
	Managed     bool              `json:"managed"             yaml:"managed"`
	Description string            `json:"description"         yaml:"description"`
	Config      map[string]string `json:"config"              yaml:"config"`
	Status      string            `json:"status,omitempty"    yaml:"status,omitempty"`
	UsedBy      []string          `json:"used_by"             yaml:"used_by"`
	Locations   []string          `json:"locations,omitempty" yaml:"locations,omitempty"`
}

// NetworksPost is the request body for creating a network.
type NetworksPost struct {
	Name        string            `json:"name"                  yaml:"name"                  validate:"required"`
	Type        string            `json:"type,omitempty"        yaml:"type,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Config      map[string]string `json:"config,omitempty"      yaml:"config,omitempty"`
}

// NetworkPut is the writable part of a network.
type NetworkPut struct {
	Description string            `json:"description" yaml:"description"`
	Config      map[string]string `json:"config"      yaml:"config"`
}

// Certificate is an entry of the server trust store.
type Certificate struct {
	Fingerprint string   `json:"fingerprint"        yaml:"fingerprint"        validate:"required"`
	Type        string   `json:"type"               yaml:"type"`
	Name        string   `json:"name"               yaml:"name"`
	Certificate string   `json:"certificate"        yaml:"certificate"`
	Restricted  bool     `json:"restricted"         yaml:"restricted"`
	Projects    []string `json:"projects,omitempty" yaml:"projects,omitempty"`
}

// CertificatesPost adds a certificate to the trust store. Either Certificate
// (PEM, base64 body) is given by an already trusted client, or Password is
// given so the server trusts the TLS client certificate of the request.
type CertificatesPost struct {
	Name        string   `json:"name,omitempty"        yaml:"name,omitempty"`
	Type        string   `json:"type"                  yaml:"type"                  validate:"required,oneof=client metrics"`
	Certificate string   `json:"certificate,omitempty" yaml:"certificate,omitempty"`
	Password    string   `json:"password,omitempty"    yaml:"-"`
	TrustToken  string   `json:"trust_token,omitempty" yaml:"-"`
	Restricted  bool     `json:"restricted,omitempty"  yaml:"restricted,omitempty"`
	Projects    []string `json:"projects,omitempty"    yaml:"projects,omitempty"`
}

// Server describes the remote server and the client's standing with it.
type Server struct {
	APIVersion    string            `json:"api_version"    yaml:"api_version"    validate:"required"`
	APIExtensions []string          `json:"api_extensions" yaml:"api_extensions"`
	APIStatus     string            `json:"api_status"     yaml:"api_status"`
	Auth          string            `json:"auth"           yaml:"auth"           validate:"required,oneof=trusted untrusted"`
	AuthMethods   []string          `json:"auth_methods"   yaml:"auth_methods"`
	Public        bool              `json:"public"         yaml:"public"`
	Config        map[string]any    `json:"config"         yaml:"config"`
	Environment   ServerEnvironment `json:"environment"    yaml:"environment"`
}

// ServerEnvironment is the host information part of Server.
type ServerEnvironment struct {
	Architectures          []string `json:"architectures"           yaml:"architectures"`
	Certificate            string   `json:"certificate"             yaml:"certificate"`
	CertificateFingerprint string   `json:"certificate_fingerprint" yaml:"certificate_fingerprint"`
	Driver                 string   `json:"driver"                  yaml:"driver"`
	DriverVersion          string   `json:"driver_version"          yaml:"driver_version"`
	Kernel                 string   `json:"kernel"                  yaml:"kernel"`
	KernelVersion          string   `json:"kernel_version"          yaml:"kernel_version"`
	Project                string   `json:"project"                 yaml:"project"`
	Server                 string   `json:"server"                  yaml:"server"`
	ServerName             string   `json:"server_name"             yaml:"server_name"`
	ServerVersion          string   `json:"server_version"          yaml:"server_version"`
}

// Trusted reports whether the server trusts the client certificate.
func (s *Server) Trusted() bool {
	return s.Auth == "trusted"
}

// HasExtension reports whether the server advertises the named API extension.
func (s *Server) HasExtension(name string) bool {
	return slices.Contains(s.APIExtensions, name)
}
