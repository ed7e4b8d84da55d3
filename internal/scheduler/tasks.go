package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskDistributeLead = "lead.distribute"

const TaskDeliverLead = "lead.deliver"

type DistributeLeadPayload struct {
	LeadID string `json:"leadId"`
}

type DeliverLeadPayload struct {
	LeadID    string `json:"leadId"`
	PartnerID string `json:"partnerId"`
}

func NewDistributeLeadTask(payload DistributeLeadPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDistributeLead, data), nil
}

func ParseDistributeLeadPayload(task *asynq.Task) (DistributeLeadPayload, error) {
	var payload DistributeLeadPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return DistributeLeadPayload{}, err
	}
	return payload, nil
}

func NewDeliverLeadTask(payload DeliverLeadPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDeliverLead, data), nil
}

func ParseDeliverLeadPayload(task *asynq.Task) (DeliverLeadPayload, error) {
	var payload DeliverLeadPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return DeliverLeadPayload{}, err
	}
	return payload, nil
}
