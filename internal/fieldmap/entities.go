package fieldmap

// BusinessRecordFields maps the lead/customer record between API and storage naming.
var BusinessRecordFields = MustMapping("business_record", map[string]string{
	"id":              "id",
	"tenantId":        "tenant_id",
	"companyName":     "company_name",
	"recordType":      "record_type",
	"status":          "status",
	"contactName":     "contact_name",
	"contactEmail":    "contact_email",
	"contactPhone":    "contact_phone",
	"website":         "website",
	"industry":        "industry",
	"employeeCount":   "employee_count",
	"address":         "address",
	"city":            "city",
	"state":           "state",
	"zipCode":         "zip_code",
	"leadSource":      "lead_source",
	"estimatedValue":  "estimated_value",
	"assignedTo":      "assigned_to",
	"nextFollowUp":    "next_follow_up",
	"lastContactedAt": "last_contacted_at",
	"convertedAt":     "converted_at",
	"customerSince":   "customer_since",
	"billingCycle":    "billing_cycle",
	"notes":           "notes",
	"createdBy":       "created_by",
	"createdAt":       "created_at",
	"updatedAt":       "updated_at",
})

// EquipmentFields maps installed copier/printer equipment and its onboarding checklist.
var EquipmentFields = MustMapping("equipment", map[string]string{
	"id":                  "id",
	"tenantId":            "tenant_id",
	"businessRecordId":    "business_record_id",
	"serialNumber":        "serial_number",
	"manufacturer":        "manufacturer",
	"model":               "model",
	"equipmentType":       "equipment_type",
	"location":            "location",
	"installDate":         "install_date",
	"warrantyExpiresAt":   "warranty_expires_at",
	"meterReading":        "meter_reading",
	"colorMeterReading":   "color_meter_reading",
	"onboardingStatus":    "onboarding_status",
	"onboardingChecklist": "onboarding_checklist",
	"notes":               "notes",
	"createdBy":           "created_by",
	"createdAt":           "created_at",
	"updatedAt":           "updated_at",
})

// ServiceTicketFields maps service tickets raised against a customer's equipment.
var ServiceTicketFields = MustMapping("service_ticket", map[string]string{
	"id":                 "id",
	"tenantId":           "tenant_id",
	"ticketNumber":       "ticket_number",
	"businessRecordId":   "business_record_id",
	"equipmentId":        "equipment_id",
	"priority":           "priority",
	"status":             "status",
	"issueDescription":   "issue_description",
	"assignedTechnician": "assigned_technician",
	"scheduledAt":        "scheduled_at",
	"resolvedAt":         "resolved_at",
	"resolutionNotes":    "resolution_notes",
	"createdBy":          "created_by",
	"createdAt":          "created_at",
	"updatedAt":          "updated_at",
})

// BusinessRecordToStorage converts an API business record payload to storage naming.
func BusinessRecordToStorage(r map[string]any) map[string]any { return BusinessRecordFields.ToStorage(r) }

// BusinessRecordFromStorage converts a stored business record to API naming.
func BusinessRecordFromStorage(r map[string]any) map[string]any {
	return BusinessRecordFields.ToExternal(r)
}

// EquipmentToStorage converts an API equipment payload to storage naming.
func EquipmentToStorage(r map[string]any) map[string]any { return EquipmentFields.ToStorage(r) }

// EquipmentFromStorage converts a stored equipment row to API naming.
func EquipmentFromStorage(r map[string]any) map[string]any { return EquipmentFields.ToExternal(r) }

// ServiceTicketToStorage converts an API service ticket payload to storage naming.
func ServiceTicketToStorage(r map[string]any) map[string]any { return ServiceTicketFields.ToStorage(r) }

// ServiceTicketFromStorage converts a stored service ticket to API naming.
func ServiceTicketFromStorage(r map[string]any) map[string]any {
	return ServiceTicketFields.ToExternal(r)
}
