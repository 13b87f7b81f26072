package auth

import (
	"fmt"
	"strings"
)

// Role is the closed set of account roles.
type Role string

const (
	RolePatient       Role = "patient"
	RoleDoctor        Role = "doctor"
	RoleAdmin         Role = "admin"
	RoleReceptionist  Role = "receptionist"
	RoleNurse         Role = "nurse"
	RoleLabTechnician Role = "lab_technician"
	RolePharmacist    Role = "pharmacist"
)

// AllRoles lists every valid role in display order.
var AllRoles = []Role{
	RolePatient, RoleDoctor, RoleAdmin, RoleReceptionist,
	RoleNurse, RoleLabTechnician, RolePharmacist,
}

// ParseRole converts a string into a Role, rejecting unknown values.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if r.Valid() {
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin, RoleReceptionist,
		RoleNurse, RoleLabTechnician, RolePharmacist:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// Capability names an action guarded by role.
type Capability string

const (
	CapPatientRead       Capability = "patient:read"
	CapPatientWrite      Capability = "patient:write"
	CapPatientDelete     Capability = "patient:delete"
	CapDoctorWrite       Capability = "doctor:write"
	CapAppointmentCreate Capability = "appointment:create"
	CapAppointmentStatus Capability = "appointment:status"
	CapInvoiceRead       Capability = "invoice:read"
	CapInvoiceWrite      Capability = "invoice:write"
	CapDashboardRevenue  Capability = "dashboard:revenue"
	CapUserManage        Capability = "user:manage"
	CapEventStream       Capability = "event:stream"
)

// capabilities is the single source of truth for role permissions.
var capabilities = map[Capability][]Role{
	CapPatientRead:       {RoleAdmin, RoleReceptionist, RoleDoctor, RoleNurse, RoleLabTechnician, RolePharmacist},
	CapPatientWrite:      {RoleAdmin, RoleReceptionist, RoleDoctor},
	CapPatientDelete:     {RoleAdmin},
	CapDoctorWrite:       {RoleAdmin},
	CapAppointmentCreate: {RoleAdmin, RoleReceptionist, RoleDoctor, RoleNurse, RolePatient},
	CapAppointmentStatus: {RoleAdmin, RoleDoctor, RoleReceptionist},
	CapInvoiceRead:       {RoleAdmin, RoleReceptionist, RoleDoctor},
	CapInvoiceWrite:      {RoleAdmin, RoleReceptionist},
	CapDashboardRevenue:  {RoleAdmin, RoleReceptionist, RoleDoctor},
	CapUserManage:        {RoleAdmin},
	CapEventStream:       {RoleAdmin, RoleReceptionist},
}

// Can reports whether r holds capability c.
func (r Role) Can(c Capability) bool {
	for _, allowed := range capabilities[c] {
		if allowed == r {
			return true
		}
	}
	return false
}

// RolesWith returns the roles holding capability c.
func RolesWith(c Capability) []Role {
	out := make([]Role, len(capabilities[c]))
	copy(out, capabilities[c])
	return out
}
