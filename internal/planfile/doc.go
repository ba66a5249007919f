// Package planfile provides the schema, parsing and scanning of fetch plan
// definition files.
//
// Files are XML by default; files ending in .yaml or .yml use the equivalent
// YAML form. Both decode into the same Document.
//
// # XML Schema
//
//	<fetchPlans>
//	    <include file="base-plans.xml"/>
//	    <fetchPlan entity="sales_Order" name="order-edit" extends="_base">
//	        <property name="customer" fetchPlan="_minimal" fetch="JOIN"/>
//	        <property name="lines">
//	            <property name="product" fetchPlan="_minimal"/>
//	            <property name="quantity"/>
//	        </property>
//	    </fetchPlan>
//	</fetchPlans>
//
// The legacy spelling (<views>, <view>, the view= property attribute and the
// class= entity attribute) is accepted as well.
//
// # YAML Schema
//
//	include: [base-plans.yaml]
//	fetchPlans:
//	  - entity: sales_Order
//	    name: order-edit
//	    extends: _base
//	    properties:
//	      - number
//	      - {name: customer, fetchPlan: _minimal, fetch: JOIN}
//
// # Plan Attributes
//
//   - name, entity: required
//   - extends: comma-separated ancestor plan names; listing the plan's own
//     name means "extend and replace the previous definition"
//   - overwrite: replace a previously deployed plan with the same key
//   - systemProperties: include the entity's system attributes
package planfile
