package sqlinline

const QNextCampaignID = `--sql d7cc272a-64e1-4ad7-9e2a-3f2256c50bde
update campaign_counter
set last_id = last_id + 1
where singleton
returning last_id;
`

const QInsertCampaign = `--sql b8ed5a0d-642d-49c6-b83d-b7f46210b6fe
insert into campaigns(id, creator, beneficiary, title, description, image_ref, target_amount, deadline, created_at)
values ($1::bigint, $2::text, $3::text, $4::text, $5::text, $6::text, $7::numeric, $8::timestamptz, $9::timestamptz);
`

const QGetCampaign = `--sql bb284c5c-8105-4b4b-b59c-9064e68c7f4c
select id, creator, beneficiary, title, description, image_ref,
       target_amount::text, raised_amount::text, refunded_amount::text, disbursed_amount::text,
       deadline, donor_count, donation_count, goal_reached, active, disbursed,
       created_at, ended_at, disbursed_at
from campaigns
where id = $1::bigint;
`

// QLockCampaign takes the per-campaign writer lock for the rest of the
// transaction.
const QLockCampaign = `--sql e45f5392-cb7d-42e5-92c0-8a1fc1753a2c
select id, creator, beneficiary, title, description, image_ref,
       target_amount::text, raised_amount::text, refunded_amount::text, disbursed_amount::text,
       deadline, donor_count, donation_count, goal_reached, active, disbursed,
       created_at, ended_at, disbursed_at
from campaigns
where id = $1::bigint
for update;
`

const QListCampaigns = `--sql 07abd388-049a-4982-84f1-de36bb76edd3
select id, creator, beneficiary, title, description, image_ref,
       target_amount::text, raised_amount::text, refunded_amount::text, disbursed_amount::text,
       deadline, donor_count, donation_count, goal_reached, active, disbursed,
       created_at, ended_at, disbursed_at
from campaigns
order by id;
`

const QCountCampaigns = `--sql 455aa398-8fa8-4659-b2f5-eba8644604fa
select count(*) from campaigns;
`

const QCampaignExists = `--sql d83804af-f26b-4984-84e2-8b573ee43fa8
select exists(select 1 from campaigns where id = $1::bigint);
`

const QUpdateCampaignState = `--sql 2af61447-df88-4e11-bbd3-eb938d00b0b7
update campaigns
set raised_amount = $2::numeric,
    refunded_amount = $3::numeric,
    disbursed_amount = $4::numeric,
    donor_count = $5::bigint,
    donation_count = $6::bigint,
    goal_reached = $7::boolean,
    active = $8::boolean,
    disbursed = $9::boolean,
    ended_at = $10::timestamptz,
    disbursed_at = $11::timestamptz
where id = $1::bigint;
`
