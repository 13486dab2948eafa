package lxdtest

import (
	"net/http"
	"strings"
	"time"

	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /1.0", s.getServer)

	mux.HandleFunc("GET /1.0/instances", s.listInstances)
	mux.HandleFunc("POST /1.0/instances", s.createInstance)
	mux.HandleFunc("GET /1.0/instances/{name}", s.getInstance)
	mux.HandleFunc("PUT /1.0/instances/{name}", s.updateInstance)
	mux.HandleFunc("PATCH /1.0/instances/{name}", s.patchInstance)
	mux.HandleFunc("DELETE /1.0/instances/{name}", s.deleteInstance)
	mux.HandleFunc("GET /1.0/instances/{name}/state", s.getInstanceState)
	mux.HandleFunc("PUT /1.0/instances/{name}/state", s.updateInstanceState)

	mux.HandleFunc("GET /1.0/images", s.listImages)
	mux.HandleFunc("GET /1.0/images/{fingerprint}", s.getImage)
	mux.HandleFunc("PUT /1.0/images/{fingerprint}", s.updateImage)
	mux.HandleFunc("DELETE /1.0/images/{fingerprint}", s.deleteImage)

	mux.HandleFunc("GET /1.0/storage-pools", s.listStoragePools)
	mux.HandleFunc("POST /1.0/storage-pools", s.createStoragePool)
	mux.HandleFunc("GET /1.0/storage-pools/{name}", s.getStoragePool)
	mux.HandleFunc("PUT /1.0/storage-pools/{name}", s.updateStoragePool)
	mux.HandleFunc("DELETE /1.0/storage-pools/{name}", s.deleteStoragePool)

	mux.HandleFunc("GET /1.0/networks", s.listNetworks)
	mux.HandleFunc("POST /1.0/networks", s.createNetwork)
	mux.HandleFunc("GET /1.0/networks/{name}", s.getNetwork)
	mux.HandleFunc("PUT /1.0/networks/{name}", s.updateNetwork)
	mux.HandleFunc("DELETE /1.0/networks/{name}", s.deleteNetwork)

	mux.HandleFunc("GET /1.0/certificates", s.listCertificates)
	mux.HandleFunc("POST /1.0/certificates", s.addCertificate)
	mux.HandleFunc("GET /1.0/certificates/{fingerprint}", s.getCertificate)
	mux.HandleFunc("DELETE /1.0/certificates/{fingerprint}", s.deleteCertificate)

	mux.HandleFunc("GET /1.0/operations", s.listOperations)
	mux.HandleFunc("GET /1.0/operations/{id}", s.getOperation)
	mux.HandleFunc("DELETE /1.0/operations/{id}", s.cancelOperation)

	mux.HandleFunc("GET /1.0/events", s.events)

	mux.HandleFunc("/", func(writer http.ResponseWriter, request *http.Request) {
		WriteError(writer, http.StatusNotFound, "not found")
	})

	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		key := request.Method + " " + request.URL.Path

		s.mu.Lock()
		s.requests[key]++
		override := s.overrides[key]
		s.mu.Unlock()

		if override != nil {
			override(writer, request)

			return
		}

		mux.ServeHTTP(writer, request)
	})
}

func (s *Server) getServer(writer http.ResponseWriter, request *http.Request) {
	s.mu.Lock()
	info := s.info
	s.mu.Unlock()

	WriteSync(writer, info)
}

func (s *Server) listInstances(writer http.ResponseWriter, request *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	WriteSync(writer, listing(request, s.instances, "/1.0/instances"))
}

func (s *Server) createInstance(writer http.ResponseWriter, request *http.Request) {
	var body lxd.InstancesPost
	if !decodeBody(writer, request, &body) {
		return
	}

	if body.Name == "" {
		WriteError(writer, http.StatusBadRequest, "No name provided")

		return
	}

	s.mu.Lock()
	_, exists := s.instances[body.Name]
	s.mu.Unlock()

	if exists {
		WriteError(writer, http.StatusConflict, "Instance \""+body.Name+"\" already exists")

		return
	}

	instanceType := body.Type
	if instanceType == "" {
		instanceType = "container"
	}

	instance := lxd.Instance{
		Name:         body.Name,
		Type:         instanceType,
		Description:  body.Description,
		Architecture: "x86_64",
		Config:       body.Config,
		Devices:      body.Devices,
		Profiles:     body.Profiles,
		Ephemeral:    body.Ephemeral,
		Status:       lxd.Stopped.String(),
		StatusCode:   lxd.Stopped,
		CreatedAt:    time.Now().UTC(),
		Project:      "default",
	}

	if len(instance.Profiles) == 0 {
		instance.Profiles = []string{"default"}
	}

	op := s.start("Creating instance", instanceResources(body.Name), func() {
		s.AddInstance(instance)
	}, nil)

	WriteAsync(writer, op)
}

func (s *Server) getInstance(writer http.ResponseWriter, request *http.Request) {
	instance, ok := s.Instance(request.PathValue("name"))
	if !ok {
		WriteError(writer, http.StatusNotFound, "Instance not found")

		return
	}

	WriteSync(writer, instance)
}

func (s *Server) updateInstance(writer http.ResponseWriter, request *http.Request) {
	name := request.PathValue("name")

	if _, ok := s.Instance(name); !ok {
		WriteError(writer, http.StatusNotFound, "Instance not found")

		return
	}

	var body lxd.InstancePut
	if !decodeBody(writer, request, &body) {
		return
	}

	op := s.start("Updating instance", instanceResources(name), func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if instance, ok := s.instances[name]; ok {
			writeInstance(instance, body)
		}
	}, nil)

	WriteAsync(writer, op)
}

func (s *Server) patchInstance(writer http.ResponseWriter, request *http.Request) {
	name := request.PathValue("name")

	current, ok := s.Instance(name)
	if !ok {
		WriteError(writer, http.StatusNotFound, "Instance not found")

		return
	}

	body := current.Writable()
	if !decodeBody(writer, request, &body) {
		return
	}

	s.mu.Lock()
	if instance, ok := s.instances[name]; ok {
		writeInstance(instance, body)
	}
	s.mu.Unlock()

	WriteSync(writer, nil)
}

func (s *Server) deleteInstance(writer http.ResponseWriter, request *http.Request) {
	name := request.PathValue("name")

	instance, ok := s.Instance(name)
	if !ok {
		WriteError(writer, http.StatusNotFound, "Instance not found")

		return
	}

	if instance.StatusCode == lxd.Running {
		WriteError(writer, http.StatusBadRequest, "Instance is running")

		return
	}

	op := s.start("Deleting instance", instanceResources(name), func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		delete(s.instances, name)
	}, nil)

	WriteAsync(writer, op)
}

func (s *Server) getInstanceState(writer http.ResponseWriter, request *http.Request) {
	instance, ok := s.Instance(request.PathValue("name"))
	if !ok {
		WriteError(writer, http.StatusNotFound, "Instance not found")

		return
	}

	state := lxd.InstanceState{
		Status:     instance.Status,
		StatusCode: instance.StatusCode,
	}

	if instance.StatusCode == lxd.Running {
		state.Pid = 4242
		state.Processes = 12
		state.Network = map[string]lxd.InstanceStateNetwork{
			"eth0": {
				Addresses: []lxd.InstanceStateNetworkAddress{
					{Family: "inet", Address: "10.0.0.2", Netmask: "24", Scope: "global"},
				},
				State: "up",
				Type:  "broadcast",
			},
		}
	}

	WriteSync(writer, state)
}

func (s *Server) updateInstanceState(writer http.ResponseWriter, request *http.Request) {
	name := request.PathValue("name")

	if _, ok := s.Instance(name); !ok {
		WriteError(writer, http.StatusNotFound, "Instance not found")

		return
	}

	var body lxd.InstanceStatePut
	if !decodeBody(writer, request, &body) {
		return
	}

	target, ok := actionTargets[body.Action]
	if !ok {
		WriteError(writer, http.StatusBadRequest, "Unknown action "+body.Action)

		return
	}

	description := strings.ToUpper(body.Action[:1]) + body.Action[1:] + "ing instance"

	op := s.start(description, instanceResources(name), func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if instance, ok := s.instances[name]; ok {
			instance.StatusCode = target
			instance.Status = target.String()
			instance.LastUsedAt = time.Now().UTC()
		}
	}, nil)

	WriteAsync(writer, op)
}

var actionTargets = map[string]lxd.StatusCode{
	"start":    lxd.Running,
	"stop":     lxd.Stopped,
	"restart":  lxd.Running,
	"freeze":   lxd.Frozen,
	"unfreeze": lxd.Running,
}

func (s *Server) listImages(writer http.ResponseWriter, request *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	WriteSync(writer, listing(request, s.images, "/1.0/images"))
}

func (s *Server) getImage(writer http.ResponseWriter, request *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	image, ok := s.images[request.PathValue("fingerprint")]
	if !ok {
		WriteError(writer, http.StatusNotFound, "Image not found")

		return
	}

	WriteSync(writer, image)
}

func (s *Server) updateImage(writer http.ResponseWriter, request *http.Request) {
	var body lxd.ImagePut
	if !decodeBody(writer, request, &body) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	image, ok := s.images[request.PathValue("fingerprint")]
	if !ok {
		WriteError(writer, http.StatusNotFound, "Image not found")

		return
	}

	image.AutoUpdate = body.AutoUpdate
	image.Public = body.Public
	image.Properties = body.Properties
	image.Profiles = body.Profiles
	image.ExpiresAt = body.ExpiresAt

	WriteSync(writer, nil)
}

func (s *Server) deleteImage(writer http.ResponseWriter, request *http.Request) {
	fingerprint := request.PathValue("fingerprint")

	s.mu.Lock()
	_, ok := s.images[fingerprint]
	s.mu.Unlock()

	if !ok {
		WriteError(writer, http.StatusNotFound, "Image not found")

		return
	}

	op := s.start("Deleting image", map[string][]string{"images": {"/1.0/images/" + fingerprint}}, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		delete(s.images, fingerprint)
	}, nil)

	WriteAsync(writer, op)
}

func (s *Server) listStoragePools(writer http.ResponseWriter, request *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	WriteSync(writer, listing(request, s.pools, "/1.0/storage-pools"))
}

func (s *Server) createStoragePool(writer http.ResponseWriter, request *http.Request) {
	var body lxd.StoragePoolsPost
	if !decodeBody(writer, request, &body) {
		return
	}

	if body.Name == "" || body.Driver == "" {
		WriteError(writer, http.StatusBadRequest, "No name or driver provided")

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pools[body.Name]; exists {
		WriteError(writer, http.StatusConflict, "Storage pool \""+body.Name+"\" already exists")

		return
	}

	s.pools[body.Name] = &lxd.StoragePool{
		Name:        body.Name,
		Driver:      body.Driver,
		Description: body.Description,
		Config:      body.Config,
		Status:      "Created",
		UsedBy:      []string{},
	}

	WriteSync(writer, nil)
}

func (s *Server) getStoragePool(writer http.ResponseWriter, request *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, ok := s.pools[request.PathValue("name")]
	if !ok {
		WriteError(writer, http.StatusNotFound, "Storage pool not found")

		return
	}

	WriteSync(writer, pool)
}

func (s *Server) updateStoragePool(writer http.ResponseWriter, request *http.Request) {
	var body lxd.StoragePoolPut
	if !decodeBody(writer, request, &body) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pool, ok := s.pools[request.PathValue("name")]
	if !ok {
		WriteError(writer, http.StatusNotFound, "Storage pool not found")

		return
	}

	pool.Description = body.Description
	pool.Config = body.Config

	WriteSync(writer, nil)
}

func (s *Server) deleteStoragePool(writer http.ResponseWriter, request *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := request.PathValue("name")

	pool, ok := s.pools[name]
	if !ok {
		WriteError(writer, http.StatusNotFound, "Storage pool not found")

		return
	}

	if len(pool.UsedBy) > 0 {
		WriteError(writer, http.StatusBadRequest, "The storage pool is currently in use")

		return
	}

	delete(s.pools, name)

	WriteSync(writer, nil)
}

func (s *Server) listNetworks(writer http.ResponseWriter, request *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	WriteSync(writer, listing(request, s.networks, "/1.0/networks"))
}

func (s *Server) createNetwork(writer http.ResponseWriter, request *http.Request) {
	var body lxd.NetworksPost
	if !decodeBody(writer, request, &body) {
		return
	}

	if body.Name == "" {
		WriteError(writer, http.StatusBadRequest, "No name provided")

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.networks[body.Name]; exists {
		WriteError(writer, http.StatusConflict, "Network \""+body.Name+"\" already exists")

		return
	}

	networkType := body.Type
	if networkType == "" {
		networkType = "bridge"
	}

	s.networks[body.Name] = &lxd.Network{
		Name:        body.Name,
		Type:        networkType,
		Managed:     true,
		Description: body.Description,
		Config:      body.Config,
		Status:      "Created",
		UsedBy:      []string{},
	}

	WriteSync(writer, nil)
}

func (s *Server) getNetwork(writer http.ResponseWriter, request *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	network, ok := s.networks[request.PathValue("name")]
	if !ok {
		WriteError(writer, http.StatusNotFound, "Network not found")

		return
	}

	WriteSync(writer, network)
}

func (s *Server) updateNetwork(writer http.ResponseWriter, request *http.Request) {
	var body lxd.NetworkPut
	if !decodeBody(writer, request, &body) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	network, ok := s.networks[request.PathValue("name")]
	if !ok {
		WriteError(writer, http.StatusNotFound, "Network not found")

		return
	}

	network.Description = body.Description
	network.Config = body.Config

	WriteSync(writer, nil)
}

func (s *Server) deleteNetwork(writer http.ResponseWriter, request *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := request.PathValue("name")

	if _, ok := s.networks[name]; !ok {
		WriteError(writer, http.StatusNotFound, "Network not found")

		return
	}

	delete(s.networks, name)

	WriteSync(writer, nil)
}

func (s *Server) listCertificates(writer http.ResponseWriter, request *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	WriteSync(writer, listing(request, s.certificates, "/1.0/certificates"))
}

func (s *Server) addCertificate(writer http.ResponseWriter, request *http.Request) {
	var body lxd.CertificatesPost
	if !decodeBody(writer, request, &body) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info.Auth != "trusted" && (s.trustPass == "" || body.Password != s.trustPass) {
		WriteError(writer, http.StatusForbidden, "not authorized")

		return
	}

	material := body.Certificate
	if material == "" && request.TLS != nil && len(request.TLS.PeerCertificates) > 0 {
		material = string(request.TLS.PeerCertificates[0].Raw)
	}

	if material == "" {
		material = body.Name
	}

	certificateType := body.Type
	if certificateType == "" {
		certificateType = "client"
	}

	id := fingerprint(material)
	s.certificates[id] = &lxd.Certificate{
		Fingerprint: id,
		Type:        certificateType,
		Name:        body.Name,
		Certificate: body.Certificate,
		Restricted:  body.Restricted,
		Projects:    body.Projects,
	}

	s.info.Auth = "trusted"

	WriteSync(writer, nil)
}

func (s *Server) getCertificate(writer http.ResponseWriter, request *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cert, ok := s.certificates[request.PathValue("fingerprint")]
	if !ok {
		WriteError(writer, http.StatusNotFound, "Certificate not found")

		return
	}

	WriteSync(writer, cert)
}

func (s *Server) deleteCertificate(writer http.ResponseWriter, request *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := request.PathValue("fingerprint")

	if _, ok := s.certificates[id]; !ok {
		WriteError(writer, http.StatusNotFound, "Certificate not found")

		return
	}

	delete(s.certificates, id)

	WriteSync(writer, nil)
}

func (s *Server) listOperations(writer http.ResponseWriter, request *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byStatus := operationsByStatus(s.operations)

	if request.URL.Query().Get("recursion") == "1" {
		WriteSync(writer, byStatus)

		return
	}

	urls := make(map[string][]string, len(byStatus))
	for status, ops := range byStatus {
		for _, op := range ops {
			urls[status] = append(urls[status], "/1.0/operations/"+op.ID)
		}
	}

	WriteSync(writer, urls)
}

func (s *Server) getOperation(writer http.ResponseWriter, request *http.Request) {
	op, ok := s.Operation(request.PathValue("id"))
	if !ok {
		WriteError(writer, http.StatusNotFound, "Operation not found")

		return
	}

	WriteSync(writer, op)
}

func (s *Server) cancelOperation(writer http.ResponseWriter, request *http.Request) {
	id := request.PathValue("id")

	s.mu.Lock()
	op, ok := s.operations[id]

	var mayCancel, terminal bool
	if ok {
		mayCancel = op.MayCancel
		terminal = op.IsTerminal()
	}

	ignore := s.ignoreCancel
	s.mu.Unlock()

	switch {
	case !ok:
		WriteError(writer, http.StatusNotFound, "Operation not found")

		return
	case !mayCancel:
		WriteError(writer, http.StatusForbidden, "Only running operations can be cancelled")

		return
	case terminal:
		WriteError(writer, http.StatusBadRequest, "Operation is not running")

		return
	}

	if !ignore {
		s.apply(id, Step{StatusCode: lxd.Cancelled, Err: "Operation cancelled"})
	}

	WriteSync(writer, nil)
}

func (s *Server) events(writer http.ResponseWriter, request *http.Request) {
	s.mu.Lock()
	off := s.eventsOff
	trusted := s.info.Auth == "trusted"
	s.mu.Unlock()

	if off {
		WriteError(writer, http.StatusServiceUnavailable, "events unavailable")

		return
	}

	if !trusted {
		WriteError(writer, http.StatusForbidden, "not authorized")

		return
	}

	conn, err := s.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		return
	}

	s.connMu.Lock()
	s.conns[conn] = struct{}{}
	s.connMu.Unlock()

	defer func() {
		s.connMu.Lock()
		delete(s.conns, conn)
		s.connMu.Unlock()

		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func instanceResources(name string) map[string][]string {
	return map[string][]string{"instances": {"/1.0/instances/" + name}}
}

func writeInstance(instance *lxd.Instance, put lxd.InstancePut) {
	instance.Description = put.Description
	instance.Config = put.Config
	instance.Devices = put.Devices
	instance.Profiles = put.Profiles
	instance.Ephemeral = put.Ephemeral

	if put.Architecture != "" {
		instance.Architecture = put.Architecture
	}
}
